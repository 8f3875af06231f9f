package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder 记录步骤与补偿的执行顺序
type recorder struct {
	calls []string
}

func (r *recorder) step(name string, err error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		r.calls = append(r.calls, name)
		return err
	}
}

// TestSaga_Execute_Success 所有商品预占成功，不触发补偿
func TestSaga_Execute_Success(t *testing.T) {
	rec := &recorder{}

	s := NewSaga(time.Second)
	s.AddStep("reserve:p1", rec.step("reserve:p1", nil), rec.step("release:p1", nil))
	s.AddStep("reserve:p2", rec.step("reserve:p2", nil), rec.step("release:p2", nil))

	require.NoError(t, s.Execute(context.Background()))
	assert.Equal(t, []string{"reserve:p1", "reserve:p2"}, rec.calls)
	assert.Equal(t, 2, s.Len())
}

// TestSaga_Execute_FailureCompensatesInReverse 第三个商品预占失败，前两个逆序释放
func TestSaga_Execute_FailureCompensatesInReverse(t *testing.T) {
	rec := &recorder{}
	insufficient := errors.New("库存不足")

	s := NewSaga(0)
	s.AddStep("reserve:p1", rec.step("reserve:p1", nil), rec.step("release:p1", nil))
	s.AddStep("reserve:p2", rec.step("reserve:p2", nil), rec.step("release:p2", nil))
	s.AddStep("reserve:p3", rec.step("reserve:p3", insufficient), rec.step("release:p3", nil))

	err := s.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, insufficient, "原始错误应可穿透")
	assert.Contains(t, err.Error(), "reserve:p3")

	// 失败的步骤自身不补偿
	expected := []string{"reserve:p1", "reserve:p2", "reserve:p3", "release:p2", "release:p1"}
	assert.Equal(t, expected, rec.calls)
}

// TestSaga_Execute_CompensationFailureContinues 某个补偿失败不影响其余补偿
func TestSaga_Execute_CompensationFailureContinues(t *testing.T) {
	rec := &recorder{}

	s := NewSaga(0)
	s.AddStep("a", rec.step("a", nil), rec.step("undo-a", nil))
	s.AddStep("b", rec.step("b", nil), rec.step("undo-b", errors.New("store unavailable")))
	s.AddStep("c", rec.step("c", errors.New("boom")), nil)

	require.Error(t, s.Execute(context.Background()))
	assert.Equal(t, []string{"a", "b", "c", "undo-b", "undo-a"}, rec.calls)
}

// TestSaga_Execute_NilCompensate 没有补偿操作的步骤被跳过
func TestSaga_Execute_NilCompensate(t *testing.T) {
	rec := &recorder{}

	s := NewSaga(0)
	s.AddStep("skip:p1", rec.step("skip:p1", nil), nil)
	s.AddStep("reserve:p2", rec.step("reserve:p2", errors.New("boom")), rec.step("release:p2", nil))

	require.Error(t, s.Execute(context.Background()))
	assert.Equal(t, []string{"skip:p1", "reserve:p2"}, rec.calls)
}

// TestSaga_Execute_CancelledContext 取消后不再执行新步骤，已完成步骤被补偿
func TestSaga_Execute_CancelledContext(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())

	s := NewSaga(0)
	s.AddStep("reserve:p1",
		func(ctx context.Context) error {
			rec.calls = append(rec.calls, "reserve:p1")
			cancel()
			return nil
		},
		func(ctx context.Context) error {
			// 补偿的Context不随调用方取消
			assert.NoError(t, ctx.Err())
			rec.calls = append(rec.calls, "release:p1")
			return nil
		},
	)
	s.AddStep("reserve:p2", rec.step("reserve:p2", nil), rec.step("release:p2", nil))

	err := s.Execute(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"reserve:p1", "release:p1"}, rec.calls)
}

// TestSaga_Execute_Timeout 超时后补偿已完成步骤
func TestSaga_Execute_Timeout(t *testing.T) {
	rec := &recorder{}

	s := NewSaga(20 * time.Millisecond)
	s.AddStep("reserve:p1", rec.step("reserve:p1", nil), rec.step("release:p1", nil))
	s.AddStep("slow",
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		nil,
	)

	err := s.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"reserve:p1", "release:p1"}, rec.calls)
}

// TestSaga_Execute_Empty 没有步骤时直接成功
func TestSaga_Execute_Empty(t *testing.T) {
	assert.NoError(t, NewSaga(0).Execute(context.Background()))
}
