package userpool

import "context"

type clientMetadataContextKey struct{}
type deviceKeyContextKey struct{}

// WithClientMetadata attaches per-call client metadata to ctx. The
// Engine merges it over the configured defaults before every request;
// per-call keys win on conflict.
func WithClientMetadata(ctx context.Context, metadata map[string]string) context.Context {
	return context.WithValue(ctx, clientMetadataContextKey{}, metadata)
}

// WithDeviceKey attaches an explicit device key to ctx, overriding any
// remembered device record for the attempt's username.
func WithDeviceKey(ctx context.Context, deviceKey string) context.Context {
	return context.WithValue(ctx, deviceKeyContextKey{}, deviceKey)
}

func clientMetadataFromContext(ctx context.Context) map[string]string {
	if ctx == nil {
		return nil
	}

	metadata, _ := ctx.Value(clientMetadataContextKey{}).(map[string]string)
	return metadata
}

func deviceKeyFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	deviceKey, _ := ctx.Value(deviceKeyContextKey{}).(string)
	return deviceKey
}
