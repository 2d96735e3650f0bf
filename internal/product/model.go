package product

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryBooks          Category = "books"
	CategoryElectronics    Category = "electronics"
	CategoryClothing       Category = "clothing"
	CategoryFood           Category = "food"
	CategorySchoolSupplies Category = "school_supplies"
	CategoryServices       Category = "services"
	CategoryOthers         Category = "others"
)

// Categories lists every accepted category.
var Categories = []Category{
	CategoryBooks, CategoryElectronics, CategoryClothing, CategoryFood,
	CategorySchoolSupplies, CategoryServices, CategoryOthers,
}

func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

type Product struct {
	ID          string          `json:"id"          bson:"_id"`
	SellerID    string          `json:"sellerId"    bson:"sellerId"`
	SellerName  string          `json:"sellerName"  bson:"sellerName"`
	Title       string          `json:"title"       bson:"title"`
	Description string          `json:"description" bson:"description"`
	Price       decimal.Decimal `json:"price"       bson:"price"`
	Category    Category        `json:"category"    bson:"category"`
	Images      []string        `json:"images"      bson:"images"`
	Approved    bool            `json:"approved"    bson:"approved"`
	Stock       int             `json:"stock"       bson:"stock"`
	CreatedAt   time.Time       `json:"createdAt"   bson:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"   bson:"updatedAt"`
}

func (p Product) SortKey() (time.Time, string) { return p.CreatedAt, p.ID }

// FirstImage is the image shown in carts and order lines.
func (p Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// ListResponse wraps a product listing.
// swagger:model
type ListResponse struct {
	Category Category  `json:"category,omitempty"`
	Items    []Product `json:"items"`
}

// CreateProductRequest payload of creation. Images are http(s) URLs or
// base64 image data (optionally as a data: URL).
// swagger:model CreateProductRequest
type CreateProductRequest struct {
	Title       string   `json:"title"       validate:"required,max=120" example:"Calculus, 9th ed."`
	Description string   `json:"description" validate:"max=2000"         example:"Lightly highlighted"`
	Price       string   `json:"price"       validate:"required"         example:"350.00"`
	Category    Category `json:"category"    validate:"required"         example:"books"`
	Images      []string `json:"images"      validate:"max=5"`
	Stock       int      `json:"stock"       validate:"gte=0"            example:"3"`
}

// UpdateProductRequest payload of partial update; omitted fields stay.
// swagger:model UpdateProductRequest
type UpdateProductRequest struct {
	Title       *string   `json:"title"       validate:"omitempty,min=1,max=120"`
	Description *string   `json:"description" validate:"omitempty,max=2000"`
	Price       *string   `json:"price"`
	Category    *Category `json:"category"`
	Images      []string  `json:"images"      validate:"max=5"`
	Stock       *int      `json:"stock"       validate:"omitempty,gte=0"`
}

// RejectRequest carries the reason shown to the seller.
// swagger:model RejectRequest
type RejectRequest struct {
	Reason string `json:"reason" example:"Prohibited item"`
}
