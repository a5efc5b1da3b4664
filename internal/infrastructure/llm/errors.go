package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"

	domainllm "model-invoke-api/internal/domain/llm"
)

// classifyError 将各 SDK 的错误统一转换为 InvokeError
func classifyError(provider, model string, err error) error {
	if err == nil {
		return nil
	}
	var invokeErr *domainllm.InvokeError
	if errors.As(err, &invokeErr) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return domainllm.NewInvokeError(provider, model, "request canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return domainllm.NewInvokeError(provider, model, "request timed out", err)
	}

	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return domainllm.NewInvokeError(provider, model, describeStatus(oaiErr.StatusCode, oaiErr.Message), err)
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return domainllm.NewInvokeError(provider, model, describeStatus(antErr.StatusCode, ""), err)
	}
	var genErr genai.APIError
	if errors.As(err, &genErr) {
		return domainllm.NewInvokeError(provider, model, describeStatus(genErr.Code, genErr.Message), err)
	}

	return domainllm.NewInvokeError(provider, model, err.Error(), err)
}

// describeStatus 按上游状态码给出对调用方可读的描述
func describeStatus(status int, message string) string {
	var kind string
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = "authorization failed"
	case status == http.StatusTooManyRequests:
		kind = "rate limited"
	case status == http.StatusBadRequest || status == http.StatusNotFound || status == http.StatusUnprocessableEntity:
		kind = "bad request"
	case status >= 500:
		kind = "provider unavailable"
	default:
		kind = "request failed"
	}
	if message == "" {
		return fmt.Sprintf("%s (status %d)", kind, status)
	}
	return fmt.Sprintf("%s (status %d): %s", kind, status, message)
}
