package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/puygroup/pila-console/internal/pila"
)

type stubSender struct {
	to, subject string
	err         error
}

func (s *stubSender) Send(_ context.Context, to, subject, _ string) error {
	s.to, s.subject = to, subject
	return s.err
}

type stubUploader struct {
	batchID string
	files   int
	err     error
}

func (s *stubUploader) UploadFiles(_ context.Context, batchID string, files []pila.File) error {
	s.batchID = batchID
	s.files = len(files)
	return s.err
}

func TestSendEmailHandlerDelivers(t *testing.T) {
	sender := &stubSender{}
	handler := NewSendEmailHandler(sender, nil)

	task, err := NewSendEmailTask(SendEmailPayload{To: "a@b.co", Subject: "Asunto", Body: "Cuerpo"})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := handler(context.Background(), task); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if sender.to != "a@b.co" || sender.subject != "Asunto" {
		t.Fatalf("payload not delivered: %+v", sender)
	}
}

func TestSendEmailHandlerSkipsRetryOnBadPayload(t *testing.T) {
	handler := NewSendEmailHandler(&stubSender{}, nil)
	task := asynq.NewTask(TaskTypeSendEmail, []byte("no-json"))
	if err := handler(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestLedgerUploadHandlerRetriesOnFailure(t *testing.T) {
	uploader := &stubUploader{err: errors.New("ledger api /transactions/files/upload: 503 Service Unavailable")}
	handler := NewLedgerUploadHandler(uploader, nil)

	task, err := NewLedgerUploadTask(LedgerUploadPayload{
		BatchID: "batch-1",
		Files:   []pila.File{{Name: "a.txt", Content: []byte("x")}},
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := handler(context.Background(), task); err == nil {
		t.Fatal("upload failure must propagate so asynq retries")
	}
	if uploader.batchID != "batch-1" || uploader.files != 1 {
		t.Fatalf("payload not delivered: %+v", uploader)
	}
}
