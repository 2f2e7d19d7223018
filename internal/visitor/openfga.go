package visitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	fga "github.com/openfga/go-sdk/client"
	"github.com/openfga/go-sdk/credentials"

	"github.com/TwigBush/ordergate/internal/policy"
)

// OpenFGA asks an OpenFGA store which customer a cart belongs to, modelled
// as the tuple cart:<token> visitor customer:<id>.
type OpenFGA struct {
	c *fga.OpenFgaClient
}

type OpenFGAConfig struct {
	APIURL   string
	StoreID  string
	APIToken string // optional
	ModelID  string // optional but recommended in prod
}

func NewOpenFGA(cfg OpenFGAConfig) (*OpenFGA, error) {
	conf := &fga.ClientConfiguration{
		ApiUrl:  cfg.APIURL,
		StoreId: cfg.StoreID,
	}
	if cfg.ModelID != "" {
		conf.AuthorizationModelId = cfg.ModelID
	}
	if cfg.APIToken != "" {
		conf.Credentials = &credentials.Credentials{
			Method: credentials.CredentialsMethodApiToken,
			Config: &credentials.Config{ApiToken: cfg.APIToken},
		}
	}

	client, err := fga.NewSdkClient(conf)
	if err != nil {
		return nil, fmt.Errorf("openfga_client_init: %w", err)
	}
	return &OpenFGA{c: client}, nil
}

func (o *OpenFGA) CartCustomer(ctx context.Context, token string) (policy.CartCustomer, error) {
	if token == "" {
		return policy.NoCartCustomer, nil
	}
	body := fga.ClientListObjectsRequest{
		User:     "cart:" + token,
		Relation: "visitor",
		Type:     "customer",
	}
	resp, err := o.c.ListObjects(ctx).Body(body).Execute()
	if err != nil {
		return policy.NoCartCustomer, fmt.Errorf("fga_list_objects_error: %w", err)
	}
	for _, obj := range resp.GetObjects() {
		id, ok := parseCustomerObject(obj)
		if ok {
			return policy.CartCustomerOf(id), nil
		}
	}
	return policy.NoCartCustomer, nil
}

func parseCustomerObject(obj string) (policy.CustomerID, bool) {
	raw, ok := strings.CutPrefix(obj, "customer:")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return policy.CustomerID(id), true
}
