package service

import (
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"go.uber.org/zap"
)

// 订单、工步、批次服务的状态变更都要能打到同一份看板缓存失效入口上。
func TestNewServicesSharesHealthCache(t *testing.T) {
	repos := repository.NewRepositories(nil)
	svcs := NewServices(nil, repos, nil, nil, "", HealthConfig{}, zap.NewNop())

	if svcs.Health == nil {
		t.Fatal("health service not built")
	}
	if svcs.Order.health != svcs.Health {
		t.Fatal("order service missing health cache hook")
	}
	if svcs.Step.health != svcs.Health {
		t.Fatal("step service missing health cache hook")
	}
	if svcs.Batch.health != svcs.Health {
		t.Fatal("batch service missing health cache hook")
	}
}
