package jobs

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-dashboard/internal/ingest"
	"github.com/dvloznov/finance-dashboard/internal/pipeline"
)

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the queue fails the job without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Importer runs one statement import.
type Importer interface {
	Import(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// NewImportHandler returns a JobHandler that runs the import pipeline and
// records its result on the job. Unreadable files, invalid requests and
// unknown reference ids fail permanently; model and storage failures are retried.
func NewImportHandler(im Importer, log zerolog.Logger) JobHandler {
	return func(ctx context.Context, job *ImportCSVJob) error {
		log.Info().
			Str("job_id", job.JobID).
			Str("file", job.Filename).
			Int("attempt", job.RetryCount+1).
			Msg("Processing import job")

		res, err := im.Import(ctx, pipeline.Request{Filename: job.Filename, UserID: job.UserID, Data: job.Data})
		job.Result = res
		if err == nil {
			log.Info().Str("job_id", job.JobID).Int("inserted", res.Inserted).Msg("Import job completed")
			return nil
		}

		var (
			refErr *ingest.ReferenceError
			valErr *ingest.ValidationError
		)
		if pipeline.IsFormatError(err) || errors.As(err, &refErr) || errors.As(err, &valErr) {
			return Permanent(err)
		}
		return err
	}
}
