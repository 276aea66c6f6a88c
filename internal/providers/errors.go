package providers

import (
	"io"
	"net/http"

	"github.com/haasonsaas/gateway/pkg/inference"
)

// ClassifyHTTPResponse reads a non-2xx response body and returns an
// *inference.Error classified by status code, per the adapter contract
// (4xx client, 5xx server, 429 rate-limit, 401 auth).
func ClassifyHTTPResponse(providerType inference.ProviderType, resp *http.Response, rawRequest string) *inference.Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	status := resp.StatusCode
	kind := inference.ClassifyStatusCode(status)
	return &inference.Error{
		Kind:         kind,
		Message:      http.StatusText(status),
		ProviderType: string(providerType),
		Status:       &status,
		RawRequest:   rawRequest,
		RawResponse:  string(body),
	}
}

// WrapTransportError classifies a non-HTTP-status failure (DNS, connection
// refused, context deadline) as an inference server error: the provider
// never got to return a status code, which the model table treats the
// same as a 5xx for retry purposes.
func WrapTransportError(providerType inference.ProviderType, err error, rawRequest string) *inference.Error {
	return &inference.Error{
		Kind:         inference.ErrInferenceServer,
		Message:      "transport error",
		ProviderType: string(providerType),
		RawRequest:   rawRequest,
		Cause:        err,
	}
}
