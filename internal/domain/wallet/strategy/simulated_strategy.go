package strategy

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SimulatedStrategy 模拟支付：固定延迟后成功，不对接真实支付渠道
type SimulatedStrategy struct {
	Delay time.Duration
}

func NewSimulatedStrategy(delay time.Duration) *SimulatedStrategy {
	return &SimulatedStrategy{Delay: delay}
}

func (s *SimulatedStrategy) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "SIM-" + uuid.New().String()[:8], nil
}

// 确保实现了接口
var _ PaymentStrategy = (*SimulatedStrategy)(nil)
