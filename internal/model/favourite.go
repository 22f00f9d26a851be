package model

// MaxFavourites caps the number of bookmarked fields per browser.
const MaxFavourites = 50

// FavouriteCookie is the name of the browser cookie holding favourites.
const FavouriteCookie = "favourite_fields"

// ReplaceFavouritesRequest sets the full ordered list of favourites.
type ReplaceFavouritesRequest struct {
	Fields []string `json:"fields" binding:"max=50,dive,fieldkey"`
}

// QuickEntryRequest records a report from flat "<domain>.<field>" values.
type QuickEntryRequest struct {
	ReportDate string                `json:"report_date" binding:"required,datetime=2006-01-02,notfuture"`
	Title      string                `json:"title" binding:"max=200"`
	Values     map[string]FieldValue `json:"values" binding:"required,min=1,dive,keys,fieldkey,endkeys"`
}
