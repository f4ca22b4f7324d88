package searcher

import (
	"context"
	"encoding/json"
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/rpc"
)

// RegisterRPC exposes svc on s as TypeIndex.Resolve and TypeIndex.Health.
func RegisterRPC(s *rpc.Server, svc *Service) {
	s.Register(proto.MethodResolve, func(ctx context.Context, params json.RawMessage) (any, error) {
		var req proto.IndexRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "decoding request: %v", err)
		}
		return svc.Resolve(ctx, SourceRPC, &req)
	})
	s.Register(proto.MethodHealth, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return &proto.HealthCheckResponse{Status: "SERVING"}, nil
	})
}
