package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Settings are the export tunables kept in Parameter Store: the pieces of
// the output key pattern and the watermark state key. They live in SSM so
// operators can repoint output without redeploying the function.
type Settings struct {
	OutputPrefix string
	OutputSuffix string
	StateKey     string
}

// Client wraps an AWS SSM API for parameter retrieval.
type Client struct {
	api ssmAPI
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// GetParameter fetches one decrypted parameter value by name.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// LoadSettings reads the export settings stored under prefix.
func (c *Client) LoadSettings(ctx context.Context, prefix string) (Settings, error) {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return Settings{}, errors.New("paramstore: prefix is required")
	}

	outputPrefix, err := c.GetParameter(ctx, prefix+"/export/output_prefix")
	if err != nil {
		return Settings{}, fmt.Errorf("paramstore: load output prefix: %w", err)
	}
	outputSuffix, err := c.GetParameter(ctx, prefix+"/export/output_suffix")
	if err != nil {
		return Settings{}, fmt.Errorf("paramstore: load output suffix: %w", err)
	}
	stateKey, err := c.GetParameter(ctx, prefix+"/export/state_key")
	if err != nil {
		return Settings{}, fmt.Errorf("paramstore: load state key: %w", err)
	}

	return Settings{
		OutputPrefix: outputPrefix,
		OutputSuffix: outputSuffix,
		StateKey:     stateKey,
	}, nil
}
