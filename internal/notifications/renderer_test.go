package notifications

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	domain "github.com/3ureka-official/religionne00-sub001/internal/domain"
)

func sampleOrder() domain.Order {
	shipped := time.Date(2024, 5, 2, 1, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:       "01HXORDER",
		Customer: "山田 太郎",
		Email:    "taro@example.com",
		Phone:    "090-1234-5678",
		Items: []domain.OrderItem{
			{ProductID: "p1", Name: "Logo Tee", Price: 3000, Quantity: 2, Size: "M"},
			{ProductID: "p2", Name: "Cap <script>alert(1)</script>", Price: 2500, Quantity: 1},
		},
		Address: domain.Address{
			PostalCode: "150-0001",
			Prefecture: "東京都",
			City:       "渋谷区",
			Line1:      "神宮前1-1-1",
		},
		PaymentMethod: domain.PaymentMethodCOD,
		Subtotal:      8500,
		ShippingFee:   0,
		Total:         8500,
		Status:        domain.OrderStatusPaid,
		CreatedAt:     time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC),
		ShippedDate:   &shipped,
	}
}

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestRenderOrderConfirmationJapanese(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer()
	require.NoError(t, err)

	msg, err := r.Render(TemplateOrderConfirmation, "ja-JP", map[string]any{"Order": sampleOrder()})
	require.NoError(t, err)

	require.Equal(t, "ja", msg.Locale)
	require.Contains(t, msg.Subject, "01HXORDER")
	require.Contains(t, msg.Subject, "Religionne00")
	require.Contains(t, msg.Text, "¥8,500")
	require.Contains(t, msg.Text, "代金引換")
	require.Contains(t, msg.Text, "無料")

	doc := parse(t, msg.HTML)
	require.Equal(t, 3, doc.Find("table tr").Length(), "header plus one row per item")
	require.Equal(t, 0, doc.Find("script").Length(), "script tags must be sanitised")
	require.Equal(t, "ご注文内容をご確認ください", strings.TrimSpace(doc.Find(".preheader").Text()))
	require.Contains(t, doc.Find(".content").Text(), "¥6,000")
}

func TestRenderFallsBackToDefaultLocale(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer()
	require.NoError(t, err)

	msg, err := r.Render(TemplateAdminAlert, "en-US", map[string]any{"Order": sampleOrder(), "AdminURL": "https://admin.example.com/orders/01HXORDER"})
	require.NoError(t, err)
	require.Equal(t, "ja", msg.Locale, "admin alert only exists in Japanese")

	doc := parse(t, msg.HTML)
	link := doc.Find(`a[href^="https://admin.example.com"]`)
	require.Equal(t, 1, link.Length())
	href, _ := link.Attr("href")
	require.Equal(t, "https://admin.example.com/orders/01HXORDER", href)
	require.Contains(t, msg.Text, "2024/05/01 12:00")
}

func TestRenderShipmentNoticeEnglish(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer(WithStoreName("R00"))
	require.NoError(t, err)

	msg, err := r.Render(TemplateShipmentNotice, "en", map[string]any{"Order": sampleOrder()})
	require.NoError(t, err)
	require.Equal(t, "en", msg.Locale)
	require.Equal(t, "[R00] Your order has shipped (01HXORDER)", msg.Subject)
	require.Contains(t, msg.Text, "2024/05/02")
	require.Contains(t, msg.Text, "Please pay ¥8,500 on delivery.")

	doc := parse(t, msg.HTML)
	require.Equal(t, 2, doc.Find("li").Length())
	require.Equal(t, "R00", strings.TrimSpace(doc.Find(".footer").Text()))
}

func TestRenderUnknownTemplate(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer()
	require.NoError(t, err)
	_, err = r.Render("missing", "ja", nil)
	require.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestSplitFrontMatter(t *testing.T) {
	t.Parallel()

	fm, body := splitFrontMatter("---\nsubject: hi\n---\n\nbody\n")
	require.Equal(t, "subject: hi", fm)
	require.Equal(t, "body\n", body)

	fm, body = splitFrontMatter("no front matter")
	require.Empty(t, fm)
	require.Equal(t, "no front matter", body)
}
