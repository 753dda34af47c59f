package listings

import (
	"testing"

	"sharehouse-backend/internal/application/listings"
	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/testsupport"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newApp(db *gorm.DB, userID uuid.UUID) *fiber.App {
	h := &Handlers{Service: &listings.Service{DB: db, DefaultCurrency: "PLN"}}
	app := fiber.New()
	app.Use(testsupport.AsUser(userID))
	app.Post("/house/:id/list", h.List)
	app.Post("/house/:id/unlist", h.Unlist)
	app.Get("/house/:id/listings", h.ForHouse)
	app.Get("/listings", h.Browse)
	app.Get("/listings/cheapest", h.Cheapest)
	app.Get("/listings/mine", h.Mine)
	app.Get("/listings/:id", h.Get)
	return app
}

func TestListAndUnlist(t *testing.T) {
	db := testsupport.NewDB(t)
	seller := testsupport.User(t, db, "seller")
	house := testsupport.House(t, db, 20)
	testsupport.Own(t, db, house.ID, seller.ID, 20)
	app := newApp(db, seller.ID)
	path := "/house/" + house.ID.String()

	status, out := testsupport.Do(t, app, "POST", path+"/list", map[string]interface{}{"price": "0", "shares": 5})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "BAD_PRICE", out["error"])

	status, out = testsupport.Do(t, app, "POST", path+"/list", map[string]interface{}{"price": 50, "shares": 0})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "BAD_SHARES", out["error"])

	status, out = testsupport.Do(t, app, "POST", path+"/list", map[string]interface{}{"price": 50, "shares": 5, "currency": "bogus"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "BAD_CURRENCY", out["error"])

	status, out = testsupport.Do(t, app, "POST", path+"/list", map[string]interface{}{"price": 50, "shares": 30})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "NOT_ENOUGH_SHARES", out["error"])
	assert.Equal(t, float64(20), out["my_shares"])

	status, out = testsupport.Do(t, app, "POST", path+"/list", map[string]interface{}{"price": "50.00", "shares": 5, "currency": "eur"})
	require.Equal(t, fiber.StatusOK, status, out)
	listing := out["listing"].(map[string]interface{})
	assert.Equal(t, "EUR", listing["currency"])
	assert.Equal(t, float64(5), listing["share_count"])

	var h domain.House
	require.NoError(t, db.Where("id = ?", house.ID).Take(&h).Error)
	assert.Equal(t, domain.HouseForSale, h.Status)

	status, out = testsupport.Do(t, app, "POST", path+"/unlist", nil)
	require.Equal(t, fiber.StatusOK, status, out)
	assert.Equal(t, domain.ListingCancelled, out["listing"].(map[string]interface{})["status"])
}

func TestBrowseAndCheapest(t *testing.T) {
	db := testsupport.NewDB(t)
	a := testsupport.User(t, db, "a")
	b := testsupport.User(t, db, "b")
	house := testsupport.House(t, db, 10)
	other := testsupport.House(t, db, 10)
	testsupport.Listing(t, db, house.ID, a.ID, "300.00", 5)
	cheap := testsupport.Listing(t, db, house.ID, b.ID, "120.00", 5)
	testsupport.Listing(t, db, other.ID, a.ID, "90.00", 10)
	app := newApp(db, a.ID)

	status, out := testsupport.Do(t, app, "GET", "/listings?order_by=price&limit=2", nil)
	require.Equal(t, fiber.StatusOK, status, out)
	assert.Equal(t, float64(3), out["total"])
	assert.Len(t, out["listings"], 2)

	status, out = testsupport.Do(t, app, "GET", "/listings?min_price=100&max_price=200", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), out["total"])

	status, out = testsupport.Do(t, app, "GET", "/listings?min_price=abc", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "BAD_PRICE", out["error"])

	status, out = testsupport.Do(t, app, "GET", "/house/"+house.ID.String()+"/listings", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(2), out["total"])

	status, out = testsupport.Do(t, app, "GET", "/listings/cheapest?house_id="+house.ID.String(), nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, cheap.ID.String(), out["listing"].(map[string]interface{})["id"])

	status, out = testsupport.Do(t, app, "GET", "/listings/mine", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(2), out["total"])

	status, out = testsupport.Do(t, app, "GET", "/listings/"+uuid.NewString(), nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "LISTING_NOT_FOUND", out["error"])
}
