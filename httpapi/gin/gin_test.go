package gin

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/halopay/halopay-go/digest"
	"github.com/halopay/halopay-go/executor"
	"github.com/halopay/halopay-go/httpapi"
	"github.com/halopay/halopay-go/nonceledger"
	"github.com/halopay/halopay-go/persistence/memory"
	"github.com/halopay/halopay-go/registry"
)

func init() {
	// Disable Gin debug mode for cleaner test output
	gin.SetMode(gin.TestMode)
}

func newTestHandlers() *httpapi.Handlers {
	store := memory.NewMemoryStore()
	logger := zap.NewNop()

	reg := registry.New(store, logger)
	nonces := nonceledger.New(store)
	builder := digest.NewBuilder(big.NewInt(8453), common.HexToAddress("0x3333333333333333333333333333333333333333"))
	exec := executor.New(reg, nonces, nil, builder, common.Address{}, logger)

	return httpapi.New(reg, nonces, exec, logger)
}

func TestMount(t *testing.T) {
	r := gin.New()
	Mount(r.Group("/api"), newTestHandlers())

	// Health route resolves under the group prefix.
	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", rec.Code, http.StatusOK)
	}

	// Engine routes work end to end through the adapter.
	body, _ := json.Marshal(httpapi.RegisterRequest{
		Payer:  "0x1111111111111111111111111111111111111111",
		Device: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	})
	req = httptest.NewRequest(http.MethodPost, "/api/register", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestMountRootGroup(t *testing.T) {
	r := gin.New()
	Mount(r.Group("/"), newTestHandlers())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", rec.Code, http.StatusOK)
	}
}
