package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/needibay/ordersync_backend/config"
	"github.com/needibay/ordersync_backend/models"
	"github.com/needibay/ordersync_backend/utils"
	"github.com/shopspring/decimal"
)

func TestLedgerLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "ordersync_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	businessID := "biz-ledger-test"
	ctx = utils.SetBusinessIdInContext(ctx, businessID)
	ctx = utils.SetUserIdInContext(ctx, 1)

	// Seed an incoming batch: 100 units at 12.50.
	if _, err := models.CreateInventoryRecord(ctx, &models.NewInventoryRecord{
		ProductId:   1,
		ProductName: "Sunrise Tea 250g",
		Quantity:    100,
		UnitPrice:   decimal.NewFromFloat(12.50),
	}); err != nil {
		t.Fatalf("CreateInventoryRecord: %v", err)
	}

	// Dispatch 30 to a distributor; 70 remain.
	if _, err := models.PlaceDistributorOrder(ctx, &models.NewDistributorOrder{
		DistributorId:   5,
		DistributorName: "Metro Distribution",
		ProductId:       1,
		ProductName:     "Sunrise Tea 250g",
		Quantity:        30,
	}); err != nil {
		t.Fatalf("PlaceDistributorOrder(30): %v", err)
	}
	avail, err := models.AvailableQuantity(ctx, 1)
	if err != nil || avail != 70 {
		t.Fatalf("expected 70 available, got %d (%v)", avail, err)
	}

	// 80 of 70 must be rejected, then 70 of 70 drains the product to zero.
	_, err = models.PlaceDistributorOrder(ctx, &models.NewDistributorOrder{
		DistributorId:   5,
		DistributorName: "Metro Distribution",
		ProductId:       1,
		ProductName:     "Sunrise Tea 250g",
		Quantity:        80,
	})
	if !errors.Is(err, utils.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for 80 of 70, got %v", err)
	}
	if _, err := models.PlaceDistributorOrder(ctx, &models.NewDistributorOrder{
		DistributorId:   5,
		DistributorName: "Metro Distribution",
		ProductId:       1,
		ProductName:     "Sunrise Tea 250g",
		Quantity:        70,
	}); err != nil {
		t.Fatalf("PlaceDistributorOrder(70): %v", err)
	}
	avail, err = models.AvailableQuantity(ctx, 1)
	if err != nil || avail != 0 {
		// Fully dispatched is zero, not missing.
		t.Fatalf("expected 0 available, got %d (%v)", avail, err)
	}

	// A product with no incoming batches is NotFound, and placing against it
	// reports the product, not a quantity problem.
	if _, err := models.AvailableQuantity(ctx, 999); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected ErrorRecordNotFound for unseen product, got %v", err)
	}
	_, err = models.PlaceDistributorOrder(ctx, &models.NewDistributorOrder{
		DistributorId:   5,
		DistributorName: "Metro Distribution",
		ProductId:       999,
		ProductName:     "Ghost Product",
		Quantity:        1,
	})
	if !errors.Is(err, utils.ErrProductNotInStock) {
		t.Fatalf("expected ErrProductNotInStock, got %v", err)
	}

	// The latest batch sets the current unit price.
	if _, err := models.CreateInventoryRecord(ctx, &models.NewInventoryRecord{
		ProductId:   1,
		ProductName: "Sunrise Tea 250g",
		Quantity:    10,
		UnitPrice:   decimal.NewFromFloat(14.00),
	}); err != nil {
		t.Fatalf("CreateInventoryRecord(second batch): %v", err)
	}
	price, err := models.CurrentUnitPrice(ctx, 1)
	if err != nil {
		t.Fatalf("CurrentUnitPrice: %v", err)
	}
	if !price.Equal(decimal.NewFromFloat(14.00)) {
		t.Fatalf("expected latest price 14.00, got %s", price)
	}

	// Window valuation prices dispatched quantity at the current price.
	today := time.Now().UTC()
	valuation, err := models.DispatchedValuation(ctx, 5, 1, today, today)
	if err != nil {
		t.Fatalf("DispatchedValuation: %v", err)
	}
	if valuation.FinalQuantity != 100 {
		t.Fatalf("expected 100 dispatched today, got %d", valuation.FinalQuantity)
	}
	if valuation.FinalAmount == nil || !valuation.FinalAmount.Equal(decimal.NewFromInt(1400)) {
		t.Fatalf("expected amount 1400 at current price, got %v", valuation.FinalAmount)
	}

	total, err := models.TotalValueForDistributor(ctx, 5, today, today)
	if err != nil {
		t.Fatalf("TotalValueForDistributor: %v", err)
	}
	if total.FinalQuantity != 100 || !total.FinalAmount.Equal(decimal.NewFromInt(1400)) {
		t.Fatalf("unexpected distributor total: qty=%d amount=%s", total.FinalQuantity, total.FinalAmount)
	}

	if _, err := models.TotalValueForDistributor(ctx, 404, today, today); !errors.Is(err, utils.ErrNoOrdersFound) {
		t.Fatalf("expected ErrNoOrdersFound for distributor without dispatches, got %v", err)
	}
}

func TestOrderCreationPricingAndEnqueue(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "ordersync_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	businessID := "biz-order-test"
	ctx = utils.SetBusinessIdInContext(ctx, businessID)
	ctx = utils.SetUserIdInContext(ctx, 1)

	db := config.GetDB()
	salesperson := models.Salesperson{BusinessId: businessID, Name: "Ravi", Email: "ravi@example.com", PhoneNumber: "+919876543210"}
	if err := db.WithContext(ctx).Create(&salesperson).Error; err != nil {
		t.Fatalf("create salesperson: %v", err)
	}
	distributor := models.Distributor{BusinessId: businessID, Name: "Metro Distribution", Email: "dist@example.com", PhoneNumber: "+919876543211"}
	if err := db.WithContext(ctx).Create(&distributor).Error; err != nil {
		t.Fatalf("create distributor: %v", err)
	}
	shop := models.Shopkeeper{
		BusinessId:    businessID,
		Name:          "Gupta General Store",
		OwnerName:     "S. Gupta",
		ContactNumber: "+919876543212",
		SalespersonId: salesperson.ID,
	}
	if err := db.WithContext(ctx).Create(&shop).Error; err != nil {
		t.Fatalf("create shopkeeper: %v", err)
	}

	category, err := models.CreateCategory(ctx, &models.NewCategory{Name: "Beverages"})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:             "Sunrise Tea 250g",
		CategoryId:       category.ID,
		DistributorPrice: decimal.NewFromInt(80),
		RetailerPrice:    decimal.NewFromInt(100),
		Mrp:              decimal.NewFromInt(120),
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	ctx = utils.SetUserIdInContext(ctx, salesperson.ID)
	order, err := models.CreateOrder(ctx, &models.NewOrder{
		ShopkeeperId:  shop.ID,
		DistributorId: distributor.ID,
		DeliveryDate:  "2026-09-01",
		DeliverySlot:  "11AM - 2PM",
		PaymentTerm:   models.PaymentTermPartial,
		PartialPayment: &models.NewPartialPayment{
			InitialAmount: decimal.NewFromInt(50),
			DueDate:       "2026-09-15",
		},
		Items: []models.NewOrderItem{{ProductId: product.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	// Two units at the retailer price of 100.
	if !order.TotalAmount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected order total 200, got %s", order.TotalAmount)
	}
	if order.DeliveryDate == nil || order.DeliverySlot != "11AM - 2PM" {
		t.Fatalf("delivery details not persisted: date=%v slot=%q", order.DeliveryDate, order.DeliverySlot)
	}

	var payment models.PartialPayment
	if err := db.WithContext(ctx).Where("order_id = ?", order.ID).First(&payment).Error; err != nil {
		t.Fatalf("partial payment row missing: %v", err)
	}
	if !payment.InitialAmount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected initial 50, got %s", payment.InitialAmount)
	}
	if !payment.RemainingAmount.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected remaining 150, got %s", payment.RemainingAmount)
	}
	if payment.PaymentStatus != models.PartialPaymentPending {
		t.Fatalf("expected PENDING partial payment, got %s", payment.PaymentStatus)
	}
	if payment.DueDate.IsZero() {
		t.Fatalf("due date not persisted")
	}

	var job models.NotificationJob
	if err := db.WithContext(ctx).Where("order_id = ?", order.ID).First(&job).Error; err != nil {
		t.Fatalf("notification job missing: %v", err)
	}
	if job.Status != models.NotificationStatusPending || job.IsOrderUpdateMail {
		t.Fatalf("expected PENDING confirmation job, got status=%s update=%v", job.Status, job.IsOrderUpdateMail)
	}

	// Editing lines reprices the order and enqueues an update mail with the
	// previous lines snapshotted.
	updated, err := models.UpdateOrderItems(ctx, order.ID, &models.UpdateOrderItemsInput{
		Items: []models.NewOrderItem{{ProductId: product.ID, Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("UpdateOrderItems: %v", err)
	}
	if !updated.TotalAmount.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected repriced total 500, got %s", updated.TotalAmount)
	}

	var updateJob models.NotificationJob
	if err := db.WithContext(ctx).Where("order_id = ? AND is_order_update_mail = 1", order.ID).First(&updateJob).Error; err != nil {
		t.Fatalf("update job missing: %v", err)
	}
	prev, err := updateJob.DecodePrevItems()
	if err != nil {
		t.Fatalf("DecodePrevItems: %v", err)
	}
	if len(prev) != 1 || prev[0].Quantity != 2 {
		t.Fatalf("expected snapshot of previous quantity 2, got %+v", prev)
	}
}

func TestConcurrentDistributorOrdersSingleWinner(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "ordersync_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	businessID := "biz-race-test"
	ctx = utils.SetBusinessIdInContext(ctx, businessID)

	if _, err := models.CreateInventoryRecord(ctx, &models.NewInventoryRecord{
		ProductId:   1,
		ProductName: "Sunrise Tea 250g",
		Quantity:    70,
		UnitPrice:   decimal.NewFromFloat(12.50),
	}); err != nil {
		t.Fatalf("CreateInventoryRecord: %v", err)
	}

	// Every request wants the entire remaining stock; the posting lock must
	// serialize them so exactly one lands.
	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = models.PlaceDistributorOrder(ctx, &models.NewDistributorOrder{
				DistributorId:   5,
				DistributorName: "Metro Distribution",
				ProductId:       1,
				ProductName:     "Sunrise Tea 250g",
				Quantity:        70,
			})
		}(i)
	}
	wg.Wait()

	var won, rejected int
	for i, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, utils.ErrInsufficientStock):
			rejected++
		default:
			t.Fatalf("worker %d: unexpected error %v", i, err)
		}
	}
	if won != 1 || rejected != workers-1 {
		t.Fatalf("expected exactly 1 winner and %d rejections, got %d/%d", workers-1, won, rejected)
	}

	avail, err := models.AvailableQuantity(ctx, 1)
	if err != nil || avail != 0 {
		t.Fatalf("expected 0 available after the race, got %d (%v)", avail, err)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ordersync-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ordersync-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=ordersync_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
