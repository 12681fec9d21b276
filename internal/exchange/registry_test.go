package exchange

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/zhanghongchuang/perp-dex-tools/internal/config"
	"github.com/zhanghongchuang/perp-dex-tools/pkg/types"
)

// stubClient satisfies ExchangeClient for registry tests.
type stubClient struct {
	name string
}

func (s *stubClient) Name() string                { return s.name }
func (s *stubClient) Connect(context.Context) error { return nil }
func (s *stubClient) Disconnect() error           { return nil }
func (s *stubClient) GetContractAttributes(context.Context) (ContractAttributes, error) {
	return ContractAttributes{}, nil
}
func (s *stubClient) FetchBBOPrices(context.Context, string) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, nil
}
func (s *stubClient) GetOrderPrice(context.Context, types.Side) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (s *stubClient) PlaceOpenOrder(context.Context, string, decimal.Decimal, types.Side) (types.OrderResult, error) {
	return types.OrderResult{}, nil
}
func (s *stubClient) PlaceCloseOrder(context.Context, string, decimal.Decimal, decimal.Decimal, types.Side) (types.OrderResult, error) {
	return types.OrderResult{}, nil
}
func (s *stubClient) PlaceMarketOrder(context.Context, string, decimal.Decimal, types.Side) (types.OrderResult, error) {
	return types.OrderResult{}, nil
}
func (s *stubClient) CancelOrder(context.Context, string) (types.OrderResult, error) {
	return types.OrderResult{}, nil
}
func (s *stubClient) GetOrderInfo(context.Context, string) (*types.OrderInfo, error) {
	return nil, nil
}
func (s *stubClient) GetActiveOrders(context.Context, string) ([]types.OrderInfo, error) {
	return nil, nil
}
func (s *stubClient) GetAccountPositions(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (s *stubClient) SetOrderUpdateHandler(types.OrderUpdateHandler) {}
func (s *stubClient) CurrentOrder() *types.OrderInfo                 { return nil }

func stubConstructor(name string) Constructor {
	return func(cfg *config.Config, logger *slog.Logger) (ExchangeClient, error) {
		return &stubClient{name: name}, nil
	}
}

func TestRegistryCreate(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	if err := r.Register("TestVenue", stubConstructor("testvenue")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Lookup is case-insensitive.
	client, err := r.Create("TESTVENUE", &config.Config{}, slog.Default())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if client.Name() != "testvenue" {
		t.Errorf("Name = %q, want %q", client.Name(), "testvenue")
	}
}

func TestRegistryUnknownVenue(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register("lighter", stubConstructor("lighter"))

	_, err := r.Create("binance", &config.Config{}, slog.Default())
	if !errors.Is(err, ErrUnknownVenue) {
		t.Fatalf("Create unknown venue: err = %v, want ErrUnknownVenue", err)
	}
	// The error names what is registered so a config typo is obvious.
	if got := err.Error(); !errors.Is(err, ErrUnknownVenue) || got == "" {
		t.Errorf("error message empty")
	}
}

func TestRegistryNilConstructor(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	if err := r.Register("broken", nil); err == nil {
		t.Fatal("Register(nil) should fail")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register("grvt", stubConstructor("grvt"))
	r.Register("lighter", stubConstructor("lighter"))
	r.Register("aster", stubConstructor("aster"))

	names := r.Names()
	want := []string{"aster", "grvt", "lighter"}
	if len(names) != len(want) {
		t.Fatalf("Names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names = %v, want %v", names, want)
		}
	}
}
