package logger

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"testing"

	"github.com/rollbar/rollbar-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func personOf(t *testing.T, payload []any) *rollbar.Person {
	t.Helper()
	for _, item := range payload {
		if ctx, ok := item.(context.Context); ok {
			p, found := rollbar.PersonFromContext(ctx)
			require.True(t, found)
			return p
		}
	}
	return nil
}

func TestPrepare_PersonTravelsWithTheItem(t *testing.T) {
	l := New(log.New(&bytes.Buffer{}, "", 0), "", "test")
	cause := errors.New("boom")

	payload := l.prepare("failed", []any{cause, Person{ID: 7, Email: "alice@example.com"}, Person{ID: 8}})
	require.Len(t, payload, 3)
	assert.Equal(t, "failed", payload[0])
	assert.Equal(t, cause, payload[1])

	p := personOf(t, payload)
	require.NotNil(t, p)
	assert.Equal(t, "7", p.Id)
	assert.Equal(t, "alice@example.com", p.Email)

	assert.Nil(t, personOf(t, l.prepare("anonymous", nil)))
}

func TestPrepare_ConcurrentReportsKeepTheirOwnPerson(t *testing.T) {
	l := New(log.New(&bytes.Buffer{}, "", 0), "", "test")

	var wg sync.WaitGroup
	for i := uint64(1); i <= 20; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			p := personOf(t, l.prepare("failed", []any{Person{ID: id}}))
			assert.Equal(t, strconv.FormatUint(id, 10), p.Id)
		}(i)
	}
	wg.Wait()
}

func TestPrint_OmitsPerson(t *testing.T) {
	var buf bytes.Buffer
	l := New(log.New(&buf, "", 0), "", "test")

	l.Info("hello", Person{ID: 1, Email: "a@example.com"}, 42)
	assert.Equal(t, "[INFO] hello 42\n", buf.String())
}
