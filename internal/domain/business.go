package domain

// Business is the payload schema of the businesses collection.
type Business struct {
	Name string `json:"name" validate:"required"`
}

// Article is the payload schema of the articles collection.
type Article struct {
	Name         string   `json:"name" validate:"required"`
	Qty          *float64 `json:"qty" validate:"required,gte=0"`
	SellingPrice *float64 `json:"selling_price" validate:"required,gte=0"`
	BusinessID   string   `json:"business_id" validate:"required"`
}

type BusinessWithArticleCount struct {
	*Document
	ArticleCount int `json:"articleCount"`
}

type ArticleWithBusinessName struct {
	*Document
	BusinessName string `json:"businessName"`
}

const (
	FieldName         = "name"
	FieldQty          = "qty"
	FieldSellingPrice = "selling_price"
	FieldBusinessID   = "business_id"
)
