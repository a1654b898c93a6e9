package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Nadil-Dulnidu/IKMS/internal/api/middleware"
)

func withUser(ctx context.Context, userID string) context.Context {
	return middleware.WithUserID(ctx, userID)
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
