package result

import (
	"errors"
	"strconv"
	"testing"

	"github.com/muurk/keytune/internal/errs"
	"github.com/stretchr/testify/assert"
)

func TestOkAndErr(t *testing.T) {
	ok := Ok(42)
	assert.True(t, ok.IsOk())
	assert.Equal(t, 42, ok.Value())
	assert.NoError(t, ok.Err())

	failed := Err[int](errs.NewDisconnectedError("get_axis"))
	assert.False(t, failed.IsOk())
	assert.Equal(t, errs.KindDisconnected, failed.Kind())
	assert.Equal(t, 7, failed.UnwrapOr(7))
}

func TestErrWithNil(t *testing.T) {
	r := Err[string](nil)
	assert.False(t, r.IsOk())
	assert.Equal(t, errs.KindUnknown, r.Kind())
}

func TestMapAndThenShortCircuit(t *testing.T) {
	calls := 0
	double := func(v int) int { calls++; return v * 2 }

	assert.Equal(t, 10, Map(Ok(5), double).Value())
	assert.Equal(t, 1, calls)

	failed := Map(Err[int](errors.New("boom")), double)
	assert.False(t, failed.IsOk())
	assert.Equal(t, 1, calls)

	parse := func(s string) Result[int] { return Of(strconv.Atoi(s)) }
	assert.Equal(t, 12, AndThen(Ok("12"), parse).Value())
	assert.False(t, AndThen(Ok("x"), parse).IsOk())
	assert.False(t, AndThen(Err[string](errors.New("boom")), parse).IsOk())
}

func TestOrElse(t *testing.T) {
	recovered := Err[int](errors.New("boom")).OrElse(func(error) Result[int] { return Ok(3) })
	assert.Equal(t, 3, recovered.Value())

	untouched := Ok(1).OrElse(func(error) Result[int] { return Ok(99) })
	assert.Equal(t, 1, untouched.Value())
}

func TestTryRecoversPanic(t *testing.T) {
	r := Try(func() (int, error) { panic("bad report") })
	assert.False(t, r.IsOk())
	assert.Contains(t, r.Err().Error(), "bad report")

	v, err := Try(func() (int, error) { return 4, nil }).Unwrap()
	assert.NoError(t, err)
	assert.Equal(t, 4, v)
}
