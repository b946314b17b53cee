package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// TableNameParam is the parameter, relative to a prefix, holding the name of
// the DynamoDB table that backs a shared relay log.
const TableNameParam = "table_name"

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter is the interface that wraps GetParameter.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
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

// ResolveTableName returns explicit when it is set. Otherwise it reads
// <prefix>/table_name through g.
func ResolveTableName(ctx context.Context, g Getter, explicit, prefix string) (string, error) {
	if v := strings.TrimSpace(explicit); v != "" {
		return v, nil
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "", errors.New("paramstore: table name or parameter prefix is required")
	}
	if g == nil {
		return "", errors.New("paramstore: getter must not be nil")
	}
	name, err := g.GetParameter(ctx, prefix+"/"+TableNameParam)
	if err != nil {
		return "", fmt.Errorf("paramstore: resolve table name: %w", err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: table name parameter is empty")
	}
	return name, nil
}
