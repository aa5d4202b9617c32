package middleware

import (
	"log"

	"github.com/gin-gonic/gin"

	"bazaar/leadhub/internal/captcha"
	"bazaar/leadhub/internal/config"
)

// ContextKeyIsHumanVerified is true once the request presented a valid
// human token (X-C-T) or solved a challenge (X-C-V).
const ContextKeyIsHumanVerified = "isHumanVerified"

func captchaClient(c *gin.Context) captcha.Client {
	return captcha.Client{
		IP:          c.ClientIP(),
		Fingerprint: c.GetHeader("X-BFP"),
		Session:     c.GetHeader("X-SPA"),
	}
}

// CaptchaMiddleware marks the request as human and, after a fresh challenge,
// returns a reusable token in the X-C-T response header.
func CaptchaMiddleware(cfg *config.Config, verifier captcha.IVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := captchaClient(c)
		isHuman := false

		if token := c.GetHeader("X-C-T"); token != "" {
			isHuman = verifier.ValidHumanToken(token, client)
		}

		if challenge := c.GetHeader("X-C-V"); !isHuman && challenge != "" {
			ok, err := verifier.Verify(c.Request.Context(), challenge, client.IP)
			if err != nil {
				log.Printf("Captcha: verification error for %s: %v", client.IP, err)
			} else if ok {
				isHuman = true
				userID := ""
				if user := CurrentUser(c); user != nil {
					userID = user.ID.String()
				}
				token, err := verifier.IssueHumanToken(userID, client, cfg.CaptchaTokenTTL)
				if err != nil {
					log.Printf("Captcha: failed to issue human token: %v", err)
				} else {
					c.Header("X-C-T", token)
				}
			}
		}

		c.Set(ContextKeyIsHumanVerified, isHuman)
		c.Next()
	}
}
