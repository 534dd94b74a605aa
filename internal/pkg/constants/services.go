// internal/pkg/constants/services.go
package constants

// 服务名，同时也是 nacos 中的注册名
const (
	PurchaseService     = "purchase-service"
	StorageService      = "storage-service"
	NotificationService = "notification-service"
	CustomerService     = "customer-service"
	ProductService      = "product-service"
)

const (
	PurchaseBasePath = "/api/v1/purchase"

	StorageBasePath       = "/api/v1/storage"
	StorageCheckOrderPath = StorageBasePath + "/check/order"
	StorageFindOutPath    = StorageBasePath + "/find/order/out/"
	StorageReservePath    = StorageBasePath + "/reserve"

	CustomerContactPath   = "/api/v1/customer/find/customerDTO/"
	CustomerCleanCartPath = "/api/v1/customer/clean/cart/"
	CustomerIdentifyPath  = "/api/v1/customer/identify/email"

	ProductNameIdentifierPath = "/api/v1/product/name-identifier"
)
