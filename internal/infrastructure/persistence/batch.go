package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// batchInserter собирает строки в один многострочный INSERT.
type batchInserter struct {
	exec        sqlx.ExecerContext
	query       string
	batchSize   int
	fieldsCount int
	values      []any
	rows        int
}

func newBatchInserter(exec sqlx.ExecerContext, baseQuery string, fieldsCount, batchSize int) *batchInserter {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &batchInserter{
		exec:        exec,
		query:       baseQuery,
		batchSize:   batchSize,
		fieldsCount: fieldsCount,
		values:      make([]any, 0, batchSize*fieldsCount),
	}
}

func (b *batchInserter) add(ctx context.Context, row ...any) error {
	if len(row) != b.fieldsCount {
		return fmt.Errorf("batch insert: ожидалось %d полей, получено %d", b.fieldsCount, len(row))
	}
	b.values = append(b.values, row...)
	b.rows++
	if b.rows >= b.batchSize {
		return b.flush(ctx)
	}
	return nil
}

func (b *batchInserter) flush(ctx context.Context) error {
	if b.rows == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(b.query)
	sb.WriteString(" VALUES ")
	for i := 0; i < b.rows; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := 0; j < b.fieldsCount; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*b.fieldsCount+j+1)
		}
		sb.WriteByte(')')
	}

	if _, err := b.exec.ExecContext(ctx, sb.String(), b.values...); err != nil {
		return fmt.Errorf("batch insert: %w", err)
	}
	b.values = b.values[:0]
	b.rows = 0
	return nil
}
