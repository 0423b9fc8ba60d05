package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"time"

	"github.com/chromedp/chromedp"
)

// Overlay layout constants, matching the black info bar drawn across the
// bottom of every annotated capture.
const (
	infoBarHeight = 160
)

// encodeJPEGImpl backs camera.encodeJPEG.
func encodeJPEGImpl(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

// drawOverlay renders the info bar as an HTML fragment via a headless
// Chromium instance (screenshotted at exactly the bar's pixel dimensions)
// and composites it onto the bottom of img in place. Text is laid out by
// the browser through chromedp rather than by hand-rolled font
// rasterization.
func drawOverlay(ctx context.Context, img *image.NRGBA, info UiInfo) error {
	width := img.Bounds().Dx()

	png, err := renderInfoBarPNG(ctx, width, infoBarHeight, info)
	if err != nil {
		return fmt.Errorf("render info bar: %w", err)
	}

	bar, err := decodePNG(png)
	if err != nil {
		return fmt.Errorf("decode info bar: %w", err)
	}

	dstRect := image.Rect(0, img.Bounds().Dy()-infoBarHeight, width, img.Bounds().Dy())
	draw.Draw(img, dstRect, bar, image.Point{}, draw.Over)
	return nil
}

func renderInfoBarPNG(parentCtx context.Context, width, height int, info UiInfo) ([]byte, error) {
	html := infoBarHTML(width, height, info)

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, 15*time.Second)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate("data:text/html," + html),
		chromedp.WaitVisible(`#bar`, chromedp.ByQuery),
		chromedp.Screenshot(`#bar`, &png, chromedp.NodeVisible),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	return png, nil
}

func infoBarHTML(width, height int, info UiInfo) string {
	const template = `<!doctype html><html><body style="margin:0">
<div id="bar" style="width:%dpx;height:%dpx;background:#000;color:#fff;
display:flex;align-items:center;justify-content:space-between;
font-family:sans-serif;box-sizing:border-box;padding:0 20px">
<div style="font-size:50px">%s %s</div>
<div style="font-size:65px;text-align:center">%s<br><span style="font-size:50px">%s</span></div>
<div style="font-size:50px;text-align:right">%s %s</div>
</div></body></html>`
	return fmt.Sprintf(template, width, height,
		info.ExternalSummary, info.ExternalGlyph, info.Task, info.Timestamp.Format("2006-01-02 15:04:05"),
		info.InternalSummary, info.InternalGlyph)
}
