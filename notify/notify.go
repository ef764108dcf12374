/*
Package notify tells teachers that a statement is ready.

PURPOSE:
  A Dispatcher delivers one message to one Recipient. Delivery channels
  are unreliable by nature (wrong numbers, unreachable APIs), so Send
  never returns an error: it reports success as a bool and the caller
  keeps a list of failures.

SESSIONS:
  Some channels keep state between messages of the same batch. Send
  receives the Session returned by the previous call (nil for the first)
  and returns the one to pass next. Dispatchers without state return the
  session unchanged.

BATCHES:
  Run walks a list of jobs in order. A job whose message cannot be
  prepared, whose send fails, or whose dispatcher panics is recorded in
  Report.Failed and the batch moves on.

SEE ALSO:
  - whatsapp.go: LogDispatcher and the click-to-chat link
  - sendgrid.go: EmailDispatcher
*/
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/escuelademusica/liquidaciones/internal/logger"
)

// Recipient is who a message goes to.
type Recipient struct {
	Name  string
	Phone string
	Email string
}

// Session is per-batch dispatcher state.
type Session struct {
	ID      uuid.UUID
	Started time.Time
	Sent    int
}

// Dispatcher delivers messages.
type Dispatcher interface {
	Send(ctx context.Context, to Recipient, message string, s *Session) (*Session, bool)
}

// Message builds the text sent to a teacher.
func Message(name, month string, year int, link, invoiceEmail string) string {
	return fmt.Sprintf("Hola %s,\n\n"+
		"Te comparto el recibo de honorarios correspondiente a %s %d.\n\n"+
		"📄 Descarga acá el PDF:\n%s\n\n"+
		"Por favor enviame la factura a %s\n\n"+
		"Gracias!", name, month, year, link, invoiceEmail)
}

// =============================================================================
// BATCH
// =============================================================================

// Job is one notification. Prepare produces the message text; it runs
// right before sending so that expensive work (publishing the PDF) is
// skipped once the batch is canceled.
type Job struct {
	StatementID int64
	Recipient   Recipient
	Prepare     func(ctx context.Context) (string, error)
}

// Failure is a job that did not go out.
type Failure struct {
	StatementID int64  `json:"statement_id"`
	Name        string `json:"name"`
	Reason      string `json:"reason"`
}

// Report summarizes a batch.
type Report struct {
	RunID  uuid.UUID
	Sent   int
	Failed []Failure
}

// Run sends every job through d.
func Run(ctx context.Context, d Dispatcher, jobs []Job) Report {
	report := Report{RunID: uuid.New()}
	var session *Session

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			for _, rest := range jobs[i:] {
				report.Failed = append(report.Failed, Failure{
					StatementID: rest.StatementID,
					Name:        rest.Recipient.Name,
					Reason:      "canceled",
				})
			}
			break
		}

		var ok bool
		var err error
		session, ok, err = runJob(ctx, d, job, session)
		if err != nil {
			logger.LogError("notification failed", err,
				"run_id", report.RunID, "statement_id", job.StatementID, "name", job.Recipient.Name)
			report.Failed = append(report.Failed, Failure{
				StatementID: job.StatementID,
				Name:        job.Recipient.Name,
				Reason:      err.Error(),
			})
			continue
		}
		if !ok {
			report.Failed = append(report.Failed, Failure{
				StatementID: job.StatementID,
				Name:        job.Recipient.Name,
				Reason:      "not delivered",
			})
			continue
		}
		report.Sent++
	}

	logger.LogInfo("notification batch finished",
		"run_id", report.RunID, "sent", report.Sent, "failed", len(report.Failed))
	return report
}

func runJob(ctx context.Context, d Dispatcher, job Job, s *Session) (next *Session, ok bool, err error) {
	next = s
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("dispatcher panic: %v", r)
			ok = false
		}
	}()

	message := ""
	if job.Prepare != nil {
		message, err = job.Prepare(ctx)
		if err != nil {
			return s, false, errors.Wrap(err, "preparing message")
		}
	}
	next, ok = d.Send(ctx, job.Recipient, message, s)
	return next, ok, nil
}
