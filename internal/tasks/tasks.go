package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"

	"bazaar/leadhub/internal/apperr"
	"bazaar/leadhub/internal/cache"
	"bazaar/leadhub/internal/config"
	"bazaar/leadhub/internal/email"
	"bazaar/leadhub/internal/models"
	"bazaar/leadhub/internal/services"
	"bazaar/leadhub/internal/storage"
	"bazaar/leadhub/internal/utils"
)

// Task types.
const (
	TypeEmailDelivery      = "email:deliver"
	TypeKycDocumentProcess = "kyc:document:process"
	TypePaymentReminder    = "inquiry:payment:remind"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueImages   = "images"
)

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(cache.AsynqOpt(rdb))
}

// --- Enqueuing ---

// TaskEnqueuer is the part of *asynq.Client the enqueuer needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer turns domain requests into asynq tasks. It satisfies
// notify.EmailEnqueuer, services.PaymentReminderScheduler and services.DocumentQueue.
type Enqueuer struct {
	client TaskEnqueuer
}

func NewEnqueuer(client TaskEnqueuer) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) enqueue(ctx context.Context, taskType string, payload interface{}, opts ...asynq.Option) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}
	info, err := e.client.EnqueueContext(ctx, asynq.NewTask(taskType, b), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", taskType, err)
	}
	log.Printf("Enqueued task %s (%s) on queue %s", info.ID, taskType, info.Queue)
	return nil
}

func (e *Enqueuer) EnqueueEmail(ctx context.Context, to, templateID string, data map[string]interface{}) error {
	return e.enqueue(ctx, TypeEmailDelivery, EmailTaskPayload{To: to, TemplateID: templateID, Data: data},
		asynq.Queue(QueueDefault), asynq.MaxRetry(5))
}

func (e *Enqueuer) SchedulePaymentReminder(ctx context.Context, inquiryID, responderID utils.SixID, orderID string, after time.Duration) error {
	return e.enqueue(ctx, TypePaymentReminder, PaymentReminderPayload{
		InquiryID:   inquiryID.String(),
		ResponderID: responderID.String(),
		OrderID:     orderID,
	}, asynq.Queue(QueueCritical), asynq.ProcessIn(after), asynq.TaskID("remind:"+orderID))
}

func (e *Enqueuer) EnqueueDocumentProcessing(ctx context.Context, userID utils.SixID, docType, key string) error {
	return e.enqueue(ctx, TypeKycDocumentProcess, KycDocumentPayload{
		UserID:  userID.String(),
		DocType: docType,
		S3Key:   key,
	}, asynq.Queue(QueueImages))
}

// --- Processing ---

// TemplateSource resolves an email template.
type TemplateSource interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
}

// TaskProcessor handles the processing of tasks.
type TaskProcessor struct {
	cfg         *config.Config
	emailSender email.Sender
	templates   TemplateSource
	storage     storage.IS3Storage
	kyc         services.IKycService
	inquiries   services.IInquiryService
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	templates TemplateSource,
	storageService storage.IS3Storage,
	kyc services.IKycService,
	inquiries services.IInquiryService,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:         cfg,
		emailSender: emailSender,
		templates:   templates,
		storage:     storageService,
		kyc:         kyc,
		inquiries:   inquiries,
	}
}

// NewServeMux registers the handlers a worker of the given kind runs.
func NewServeMux(processor *TaskProcessor, isImageWorker bool, isBgWorker bool) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	if isBgWorker {
		mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
		mux.HandleFunc(TypePaymentReminder, processor.HandlePaymentReminderTask)
		fmt.Println("Registered background task handlers (email, payment reminders).")
	}
	if isImageWorker {
		mux.HandleFunc(TypeKycDocumentProcess, processor.HandleKycDocumentTask)
		fmt.Println("Registered KYC document processing handlers.")
	}
	return mux
}

// SetupServer configures an Asynq server for the worker kind and starts it.
// The caller stops it with Shutdown.
func SetupServer(rdb *redis.Client, processor *TaskProcessor, isImageWorker bool, isBgWorker bool) (*asynq.Server, error) {
	if !isBgWorker && !isImageWorker {
		fmt.Println("Running in API mode, no task server started.")
		return nil, nil
	}

	queues := map[string]int{}
	if isBgWorker {
		queues[QueueCritical] = 6
		queues[QueueDefault] = 3
	}
	if isImageWorker {
		queues[QueueImages] = 5
	}

	srv := asynq.NewServer(
		cache.AsynqOpt(rdb),
		asynq.Config{
			Queues: queues,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				fmt.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v\n", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	if err := srv.Start(NewServeMux(processor, isImageWorker, isBgWorker)); err != nil {
		return nil, fmt.Errorf("could not start asynq server: %w", err)
	}
	return srv, nil
}

// --- Task Handlers ---

type EmailTaskPayload struct {
	To         string                 `json:"to"`
	TemplateID string                 `json:"template_id"`
	Locale     string                 `json:"locale,omitempty"`
	Data       map[string]interface{} `json:"data"`
}

// render replaces {{.key}} placeholders with the payload values.
func render(text string, data map[string]interface{}) string {
	for key, val := range data {
		text = strings.ReplaceAll(text, fmt.Sprintf("{{.%s}}", key), fmt.Sprintf("%v", val))
	}
	return text
}

func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("email task without recipient: %w", asynq.SkipRetry)
	}

	fmt.Printf("Sending email task: To=%s, Template=%s\n", payload.To, payload.TemplateID)

	tmpl, err := p.templates.GetTemplate(ctx, payload.TemplateID, payload.Locale)
	if err != nil {
		log.Printf("Error getting email template %s/%s: %v", payload.TemplateID, payload.Locale, err)
		return fmt.Errorf("email template not found: %w", asynq.SkipRetry)
	}

	subject := render(tmpl.Subject, payload.Data)
	body := render(tmpl.Body, payload.Data)

	fromAddress := p.cfg.SmtpFromAddress
	if fromAddress == "" {
		fromAddress = "noreply@example.com"
		log.Printf("Warning: SmtpFromAddress not configured, using fallback %s for email to %s", fromAddress, payload.To)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", payload.To))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", fromAddress))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString(fmt.Sprintf("%s: %s\r\n", email.TemplateHeader, payload.TemplateID))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")

	if err := p.emailSender.Send(ctx, []string{payload.To}, subject, []byte(sb.String())); err != nil {
		fmt.Printf("Email sending failed (will retry): %v\n", err)
		return err
	}

	fmt.Printf("Email task processed successfully: To=%s, Template=%s\n", payload.To, payload.TemplateID)
	return nil
}

type KycDocumentPayload struct {
	UserID  string `json:"user_id"`
	DocType string `json:"doc_type"`
	S3Key   string `json:"s3_key"`
}

// HandleKycDocumentTask shrinks an uploaded document image to the configured
// bounds, rewrites it in place and records it on the user's KYC record.
func (p *TaskProcessor) HandleKycDocumentTask(ctx context.Context, t *asynq.Task) error {
	var payload KycDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal document task payload: %v: %w", err, asynq.SkipRetry)
	}
	userID, err := utils.ParseSixID(payload.UserID)
	if err != nil {
		log.Printf("Invalid UserID in document task payload: %s", payload.UserID)
		return fmt.Errorf("invalid user ID in payload: %w", asynq.SkipRetry)
	}

	if p.storage == nil {
		return fmt.Errorf("object storage not configured")
	}

	log.Printf("Processing KYC document: S3Key=%s, UserID=%s", payload.S3Key, payload.UserID)

	imgData, contentType, err := p.storage.GetObject(ctx, payload.S3Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			log.Printf("S3 object %s not found, likely upload failed or key incorrect.", payload.S3Key)
			return fmt.Errorf("s3 object not found: %w", asynq.SkipRetry)
		}
		return fmt.Errorf("failed to download document: %w", err)
	}

	maxSizeBytes := int64(p.cfg.ImageMaxSizeMB) * 1024 * 1024
	if maxSizeBytes > 0 && int64(len(imgData)) > maxSizeBytes {
		log.Printf("Document %s exceeds max size (%d > %d bytes). Skipping.", payload.S3Key, len(imgData), maxSizeBytes)
		return fmt.Errorf("document exceeds max size: %w", asynq.SkipRetry)
	}

	img, format, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		log.Printf("Error decoding document %s: %v", payload.S3Key, err)
		return fmt.Errorf("unsupported image format or corrupt image: %w", asynq.SkipRetry)
	}
	log.Printf("Decoded document %s, format: %s, size: %dx%d", payload.S3Key, format, img.Bounds().Dx(), img.Bounds().Dy())

	maxDim := uint(p.cfg.ImageMaxDimension)
	if maxDim > 0 && (uint(img.Bounds().Dx()) > maxDim || uint(img.Bounds().Dy()) > maxDim) {
		resized := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
			return fmt.Errorf("failed to re-encode resized document: %w", err)
		}
		log.Printf("Resized document %s to %dx%d", payload.S3Key, resized.Bounds().Dx(), resized.Bounds().Dy())

		if err := p.storage.PutObject(ctx, payload.S3Key, buf.Bytes(), "image/jpeg"); err != nil {
			return fmt.Errorf("failed to upload processed document: %w", err)
		}
		contentType = "image/jpeg"
	}

	if err := p.kyc.AttachDocument(ctx, userID, payload.DocType, payload.S3Key); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("no KYC record for %s: %w", payload.UserID, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to attach document: %w", err)
	}

	log.Printf("KYC document processed: Key=%s, ContentType=%s, UserID=%s", payload.S3Key, contentType, payload.UserID)
	return nil
}

type PaymentReminderPayload struct {
	InquiryID   string `json:"inquiry_id"`
	ResponderID string `json:"responder_id"`
	OrderID     string `json:"order_id"`
}

// HandlePaymentReminderTask nudges a responder whose paid acceptance is still unverified.
func (p *TaskProcessor) HandlePaymentReminderTask(ctx context.Context, t *asynq.Task) error {
	var payload PaymentReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payment reminder payload: %v: %w", err, asynq.SkipRetry)
	}
	inquiryID, err := utils.ParseSixID(payload.InquiryID)
	if err != nil {
		return fmt.Errorf("invalid inquiry ID in payload: %w", asynq.SkipRetry)
	}
	responderID, err := utils.ParseSixID(payload.ResponderID)
	if err != nil {
		return fmt.Errorf("invalid responder ID in payload: %w", asynq.SkipRetry)
	}

	reminded, err := p.inquiries.RemindPendingPayment(ctx, inquiryID, responderID, payload.OrderID)
	if err != nil {
		return err
	}
	if !reminded {
		log.Printf("Payment for order %s already settled or reminded", payload.OrderID)
	}
	return nil
}
