package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http
//
// The sweeper does not run inside Lambda; schedule `fleetdocsctl sweep --once` instead.

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"fleetdocs-backend/internal/bootstrap"
	"fleetdocs-backend/internal/shared/config"
	"fleetdocs-backend/internal/shared/telemetry"
)

type proxyFunc func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)

// newHandler builds the router on the first invocation and reuses it while the
// execution environment stays warm. A failed build is reported on every request.
func newHandler(build func(ctx context.Context) (*gin.Engine, error)) proxyFunc {
	var (
		once  sync.Once
		err   error
		proxy *ginadapter.GinLambdaV2
	)
	return func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		once.Do(func() {
			var router *gin.Engine
			router, err = build(ctx)
			if err == nil {
				proxy = ginadapter.NewV2(router)
			}
		})
		if err != nil {
			telemetry.Error("lambda.bootstrap_failed", map[string]any{"error": err.Error()})
			return errorResponse(http.StatusInternalServerError, "bootstrap_failed"), nil
		}
		resp, perr := proxy.ProxyWithContext(ctx, req)
		if perr != nil {
			telemetry.Error("lambda.proxy_failed", map[string]any{"path": req.RawPath, "error": perr.Error()})
			return errorResponse(http.StatusBadGateway, "proxy_failed"), nil
		}
		return resp, nil
	}
}

func errorResponse(status int, code string) events.APIGatewayV2HTTPResponse {
	body, _ := json.Marshal(map[string]any{"error": map[string]string{"code": code}})
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func main() {
	lambda.Start(newHandler(func(ctx context.Context) (*gin.Engine, error) {
		app, err := bootstrap.BuildWith(ctx, config.Load(), bootstrap.Options{})
		if err != nil {
			return nil, err
		}
		return app.Router, nil
	}))
}
