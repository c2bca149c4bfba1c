package keybuilder

import (
	"fmt"
)

const (
	Redis    string = "redis"
	Dispatch string = "dispatch"
	Product  string = "product"
)

// RedisLatestDispatchKeyBuild returns the key holding the latest dispatch outcome of a product.
func RedisLatestDispatchKeyBuild(productID int64) string {
	return fmt.Sprintf("%s:%s:%s:%d:latest", Redis, Dispatch, Product, productID)
}
