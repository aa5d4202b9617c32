package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bazaar/leadhub/internal/apperr"
	"bazaar/leadhub/internal/db"
	"bazaar/leadhub/internal/models"
)

const defaultLocale = "en-US"

// Built-in templates, used when the database has no override.
var defaultEmailTemplates = map[string]models.EmailTemplate{
	"new_inquiry": {
		TemplateID: "new_inquiry",
		Locale:     defaultLocale,
		Subject:    "New inquiry: {{.search_query}}",
		Body:       "{{.user_name}} is looking for \"{{.search_query}}\".\n\n{{.inquiry_message}}\n\nPriority: {{.priority}}\nOpen the inquiry {{.inquiry_id}} in your dashboard to respond.",
	},
	"inquiry_response": {
		TemplateID: "inquiry_response",
		Locale:     defaultLocale,
		Subject:    "Update on inquiry: {{.search_query}}",
		Body:       "Another recipient responded to inquiry {{.inquiry_id}} ({{.search_query}}).\n\nResponse: {{.response}}",
	},
	"payment_reminder": {
		TemplateID: "payment_reminder",
		Locale:     defaultLocale,
		Subject:    "Complete payment for inquiry: {{.search_query}}",
		Body:       "You accepted inquiry {{.inquiry_id}} ({{.search_query}}) but the lead fee of {{.lead_price}} is still unpaid.\n\nFinish payment for order {{.order_id}} to unlock the customer's contact details.",
	},
	"kyc_reviewed": {
		TemplateID: "kyc_reviewed",
		Locale:     defaultLocale,
		Subject:    "Your KYC has been {{.kyc_status}}",
		Body:       "Your KYC verification was {{.kyc_status}}. {{.rejection_reason}}",
	},
}

// IEmailTemplateService defines the interface for email template operations.
type IEmailTemplateService interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
	SaveTemplate(ctx context.Context, template *models.EmailTemplate) error
}

// EmailTemplateService handles operations related to email templates
type EmailTemplateService struct {
	db *mongo.Database
}

func NewEmailTemplateService(database *mongo.Database) *EmailTemplateService {
	return &EmailTemplateService{db: database}
}

// GetTemplate retrieves a template by id and locale, falling back to the built-in default.
func (s *EmailTemplateService) GetTemplate(ctx context.Context, templateID string, locale string) (*models.EmailTemplate, error) {
	if locale == "" {
		locale = defaultLocale
	}
	if s.db != nil {
		filter := bson.M{"template_id": templateID, "locale": locale}
		var template models.EmailTemplate
		err := s.db.Collection(db.EmailTemplatesCollection).FindOne(ctx, filter).Decode(&template)
		if err == nil {
			return &template, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("error retrieving template: %w", err)
		}
	}
	if t, ok := defaultEmailTemplates[templateID]; ok {
		return &t, nil
	}
	return nil, apperr.NotFound("template not found: %s (locale: %s)", templateID, locale)
}

// SaveTemplate upserts a template for its id and locale.
func (s *EmailTemplateService) SaveTemplate(ctx context.Context, template *models.EmailTemplate) error {
	if template.TemplateID == "" {
		return apperr.Validation("template_id is required")
	}
	if template.Locale == "" {
		template.Locale = defaultLocale
	}
	filter := bson.M{"template_id": template.TemplateID, "locale": template.Locale}
	update := bson.M{"$set": bson.M{
		"template_id": template.TemplateID,
		"locale":      template.Locale,
		"subject":     template.Subject,
		"body":        template.Body,
	}}
	_, err := s.db.Collection(db.EmailTemplatesCollection).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("error saving template: %w", err)
	}
	return nil
}
