package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	inventoryModel "peb_market/internal/domain/inventory/model"
	"peb_market/internal/pkg/config"
	"peb_market/pkg/database"
	"peb_market/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 压测：N 个并发下单抢同一个商品，结束后检查库存是否超卖
var (
	baseURL   = flag.String("url", "http://localhost:8080", "server base URL")
	productID = flag.String("product", "", "product ID to order")
	vendorID  = flag.String("vendor", "", "vendor ID owning the product")
	userID    = flag.String("user", "", "buyer user ID")
	addressID = flag.String("address", "", "buyer address ID")
	price     = flag.String("price", "100.00", "unit price")
	buyers    = flag.Int("buyers", 200, "concurrent checkouts")
	quantity  = flag.Int("qty", 1, "quantity per checkout")
)

var httpClient *http.Client

func init() {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxIdleConnsPerHost = 2000
	t.MaxConnsPerHost = 2000
	httpClient = &http.Client{
		Transport: t,
		Timeout:   30 * time.Second,
	}
}

func main() {
	flag.Parse()
	if *productID == "" || *vendorID == "" || *userID == "" || *addressID == "" {
		fmt.Println("usage: stress_tool -product <id> -vendor <id> -user <id> -address <id> [-buyers N]")
		os.Exit(2)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	db, err := database.InitDatabase(cfg.Database, false, zap.NewNop())
	if err != nil {
		fmt.Printf("连接数据库失败: %v\n", err)
		os.Exit(1)
	}

	token, _, err := utils.GenerateToken(cfg.JWT.Secret, *userID, "user", time.Hour)
	if err != nil {
		fmt.Printf("生成 token 失败: %v\n", err)
		os.Exit(1)
	}

	before, err := loadProduct(db)
	if err != nil {
		fmt.Printf("读取商品失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("开始压测：%d 个并发下单，每单 %d 件，商品 %s 库存 %d\n", *buyers, *quantity, before.Name, before.Stock)

	var (
		wg      sync.WaitGroup
		created int64
		failed  int64
	)
	start := time.Now()
	for i := 0; i < *buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if placeOrder(token) {
				atomic.AddInt64(&created, 1)
			} else {
				atomic.AddInt64(&failed, 1)
			}
		}()
	}
	wg.Wait()
	duration := time.Since(start)

	// 结算在下单请求内同步完成，这里读到的是最终库存
	after, err := loadProduct(db)
	if err != nil {
		fmt.Printf("读取商品失败: %v\n", err)
		os.Exit(1)
	}
	var movements int64
	db.Model(&inventoryModel.Movement{}).
		Where("product_id = ? AND created_at >= ?", *productID, start).
		Count(&movements)

	sold := before.Stock - after.Stock
	oversold := after.Stock < 0 || sold > before.Stock || int64(sold) != movements*int64(*quantity)

	fmt.Println("--------------------------------------------------")
	fmt.Printf("压测结束，耗时: %v\n", duration)
	fmt.Printf("QPS: %.2f\n", float64(*buyers)/duration.Seconds())
	fmt.Printf("订单创建: %d, 失败: %d\n", created, failed)
	fmt.Printf("库存: %d -> %d, 售出: %d (出库记录 %d)\n", before.Stock, after.Stock, sold, movements)
	fmt.Printf("销量: %d -> %d\n", before.SoldCount, after.SoldCount)
	if oversold {
		fmt.Println("结果: 发生超卖!")
		fmt.Println("--------------------------------------------------")
		os.Exit(1)
	}
	fmt.Println("结果: 无超卖")
	fmt.Println("--------------------------------------------------")
}

func loadProduct(db *gorm.DB) (*inventoryModel.Product, error) {
	var p inventoryModel.Product
	if err := db.First(&p, "id = ?", *productID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func placeOrder(token string) bool {
	unit, err := decimal.NewFromString(*price)
	if err != nil {
		return false
	}
	total := unit.Mul(decimal.NewFromInt(int64(*quantity)))
	payload := map[string]interface{}{
		"items": []map[string]interface{}{{
			"productId": *productID,
			"vendorId":  *vendorID,
			"quantity":  *quantity,
			"price":     unit.StringFixed(2),
		}},
		"subtotal":       total.StringFixed(2),
		"delivery":       "0.00",
		"savings":        "0.00",
		"total":          total.StringFixed(2),
		"paymentMethod":  "card",
		"deliveryMethod": "pickup",
		"addressId":      *addressID,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequest(http.MethodPost, *baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusCreated
}
