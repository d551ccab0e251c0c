package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/docvoice/internal/config"
)

type fakeAPI struct {
	values map[string]string
	err    error
	in     *ssm.GetParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[*in.Name]
	if !ok {
		return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name}}, nil
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: &v, Type: types.ParameterTypeSecureString}}, nil
}

func TestGetParameter(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"/docvoice/telegram_bot_token": "123:abc"}}
	client, err := New(api)
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), " /docvoice/telegram_bot_token ")
	require.NoError(t, err)
	require.Equal(t, "123:abc", v)
	require.True(t, *api.in.WithDecryption)
}

func TestGetParameterErrors(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")

	_, err = (&Client{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")

	client, err := New(&fakeAPI{})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")
	_, err = client.GetParameter(context.Background(), "/missing")
	require.ErrorContains(t, err, "missing value")

	client, err = New(&fakeAPI{err: errors.New("AccessDenied")})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "/p")
	require.ErrorContains(t, err, "AccessDenied")
}

func TestClientResolvesConfigSecrets(t *testing.T) {
	client, err := New(&fakeAPI{values: map[string]string{
		"/docvoice/telegram_bot_token":      "123:abc",
		"/docvoice/telegram_webhook_secret": "hook",
	}})
	require.NoError(t, err)

	cfg, err := config.ResolveSecrets(context.Background(), config.Config{
		ParamPrefix: "/docvoice",
		DatabaseURL: "postgres://env",
	}, client)
	require.NoError(t, err)
	require.Equal(t, "123:abc", cfg.TelegramBotToken)
	require.Equal(t, "hook", cfg.TelegramWebhookSecret)
	require.Equal(t, "postgres://env", cfg.DatabaseURL)
}
