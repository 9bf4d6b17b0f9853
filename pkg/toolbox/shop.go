package toolbox

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Product struct {
	SKU      string  `json:"sku" yaml:"sku"`
	Name     string  `json:"name" yaml:"name"`
	Category string  `json:"category" yaml:"category"`
	Price    float64 `json:"price" yaml:"price"`
	InStock  int     `json:"in_stock" yaml:"in_stock"`
}

// Catalog is an in-memory product list used by the demo shop tools.
type Catalog struct {
	Products []Product `yaml:"products"`
}

type SearchProductsRequest struct {
	Query    string `json:"query" jsonschema:"required,description=Words to look for in the product name"`
	Category string `json:"category,omitempty" jsonschema:"description=Only return products of this category"`
	Limit    int    `json:"limit,omitempty" jsonschema:"description=Maximum number of results,minimum=1,maximum=50"`
}

type GetProductRequest struct {
	SKU string `json:"sku" jsonschema:"required,description=Product SKU"`
}

func (c *Catalog) SearchProducts(ctx context.Context, req SearchProductsRequest) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	terms := strings.Fields(strings.ToLower(req.Query))

	ret := []Product{}
	for _, p := range c.Products {
		if req.Category != "" && !strings.EqualFold(p.Category, req.Category) {
			continue
		}
		name := strings.ToLower(p.Name)
		matched := true
		for _, term := range terms {
			if !strings.Contains(name, term) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		ret = append(ret, p)
		if len(ret) == limit {
			break
		}
	}
	return ret, nil
}

func (c *Catalog) GetProduct(req GetProductRequest) (Product, error) {
	for _, p := range c.Products {
		if strings.EqualFold(p.SKU, req.SKU) {
			return p, nil
		}
	}
	return Product{}, errors.Errorf("no product with sku %s", req.SKU)
}

func (c *Catalog) ListCategories() []string {
	seen := map[string]struct{}{}
	for _, p := range c.Products {
		seen[p.Category] = struct{}{}
	}
	ret := make([]string, 0, len(seen))
	for category := range seen {
		ret = append(ret, category)
	}
	sort.Strings(ret)
	return ret
}

// RegisterShopTools registers search_products, get_product and
// list_categories backed by catalog.
func RegisterShopTools(tb *Toolbox, catalog *Catalog) error {
	if err := tb.RegisterTool("search_products", "Search the shop catalog by name and category", catalog.SearchProducts); err != nil {
		return err
	}
	if err := tb.RegisterTool("get_product", "Get price and stock of a product", catalog.GetProduct); err != nil {
		return err
	}
	return tb.RegisterTool("list_categories", "List all product categories", catalog.ListCategories)
}

func DefaultCatalog() *Catalog {
	return &Catalog{Products: []Product{
		{SKU: "B-1", Name: "Red Rubber Ball", Category: "toys", Price: 4.5, InStock: 12},
		{SKU: "B-2", Name: "Blue Beach Ball", Category: "toys", Price: 7, InStock: 0},
		{SKU: "K-1", Name: "Chef Knife", Category: "kitchen", Price: 39.9, InStock: 3},
		{SKU: "M-1", Name: "Ceramic Mug", Category: "kitchen", Price: 9.5, InStock: 40},
	}}
}

// LoadCatalogFile reads a YAML document with a top-level products list.
func LoadCatalogFile(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read catalog %s", path)
	}
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrapf(err, "could not decode catalog %s", path)
	}
	return &c, nil
}
