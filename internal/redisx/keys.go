package redisx

import (
	"fmt"
	"time"
)

const (
	// Storefront
	KeyOrder        = "orders:id:%d"     // orders:id:{order_id} -> Order
	KeyUserOrders   = "orders:user:%d"   // orders:user:{user_id} -> []Order
	KeyOrdersStatus = "orders:status:%s" // orders:status:{status} -> []Order

	// Marketplace
	KeyListing            = "market:listing:%d"
	KeySellerListings     = "market:listings:seller:%d"
	KeyListingsStatus     = "market:listings:status:%s"
	KeyMarketOrder        = "market:order:%d"
	KeyBuyerMarketOrders  = "market:orders:buyer:%d"
	KeySellerMarketOrders = "market:orders:seller:%d"
	KeyMarketOrdersStatus = "market:orders:status:%s"
)

var TTLReadCache = 30 * time.Second

func OrderKey(id int64) string               { return fmt.Sprintf(KeyOrder, id) }
func UserOrdersKey(userID int64) string      { return fmt.Sprintf(KeyUserOrders, userID) }
func OrdersStatusKey(status string) string   { return fmt.Sprintf(KeyOrdersStatus, status) }
func ListingKey(id int64) string             { return fmt.Sprintf(KeyListing, id) }
func SellerListingsKey(id int64) string      { return fmt.Sprintf(KeySellerListings, id) }
func ListingsStatusKey(status string) string { return fmt.Sprintf(KeyListingsStatus, status) }
func MarketOrderKey(id int64) string         { return fmt.Sprintf(KeyMarketOrder, id) }
func BuyerMarketOrdersKey(id int64) string   { return fmt.Sprintf(KeyBuyerMarketOrders, id) }
func SellerMarketOrdersKey(id int64) string  { return fmt.Sprintf(KeySellerMarketOrders, id) }
func MarketOrdersStatusKey(s string) string  { return fmt.Sprintf(KeyMarketOrdersStatus, s) }
