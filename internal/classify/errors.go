package classify

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyResponse is returned when the model answers with no content.
	ErrEmptyResponse = errors.New("Resposta vazia do modelo.")

	// ErrUnparseableOutput is returned when neither the response nor its
	// trailing {...} object decodes as JSON.
	ErrUnparseableOutput = errors.New("Falha ao parsear JSON de saída do modelo.")

	// ErrCountMismatch is returned when a batch of K inputs does not yield K outputs.
	ErrCountMismatch = errors.New("quantidade de transações classificadas difere do lote enviado")

	// ErrSchemaViolation is returned when an output record is missing a field,
	// carries an unknown field or holds a value outside its enum.
	ErrSchemaViolation = errors.New("saída do modelo fora do schema")
)

// BatchError reports which batch failed. Completed is the number of
// transactions classified by the batches before it.
type BatchError struct {
	Index     int
	Completed int
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("classify batch %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
