// Package jobs defines the asynchronous tasks behind the console: outbound
// notification emails for external-severity correction codes and the
// durable upload of validated batches to the ledger service.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/puygroup/pila-console/internal/pila"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending notification emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeLedgerUpload is the task type for anchoring a validated
	// batch on the ledger service.
	TaskTypeLedgerUpload = "ledger:upload"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// EmailSender delivers one message. The worker wires the SMTP
// implementation; tests use a stub.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewSendEmailHandler builds the Asynq handler for TaskTypeSendEmail.
func NewSendEmailHandler(sender EmailSender, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if err := sender.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
			logger.Error("send email", slog.String("to", payload.To), slog.Any("error", err))
			return err
		}
		logger.Info("email sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
		return nil
	}
}

// LedgerUploadPayload carries a validated batch to the upload worker. The
// file contents travel in the payload so a restart cannot lose them.
type LedgerUploadPayload struct {
	BatchID string      `json:"batch_id"`
	Files   []pila.File `json:"files"`
}

// NewLedgerUploadTask constructs an Asynq task.
func NewLedgerUploadTask(payload LedgerUploadPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeLedgerUpload, data), nil
}

// BatchUploader anchors a batch of planilla files on the ledger.
type BatchUploader interface {
	UploadFiles(ctx context.Context, batchID string, files []pila.File) error
}

// NewLedgerUploadHandler builds the Asynq handler for TaskTypeLedgerUpload.
// Upload failures return the error so Asynq retries with backoff; that is
// the durability the in-request fire-and-forget lacked.
func NewLedgerUploadHandler(uploader BatchUploader, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LedgerUploadPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if err := uploader.UploadFiles(ctx, payload.BatchID, payload.Files); err != nil {
			logger.Error("ledger upload",
				slog.String("batch_id", payload.BatchID),
				slog.Int("files", len(payload.Files)),
				slog.Any("error", err))
			return err
		}
		logger.Info("batch anchored", slog.String("batch_id", payload.BatchID), slog.Int("files", len(payload.Files)))
		return nil
	}
}
