package adapter

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/saintfish/chardet"
)

var (
	reScript = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	reStyle  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
)

// HTMLToPDFText is the fallback for HTML sources when no browser engine is
// installed: strip scripts and styles, reduce the markup to markdown text,
// and typeset that into a PDF. Layout is lost; content survives.
type HTMLToPDFText struct{}

func NewHTMLToPDFText() *HTMLToPDFText { return &HTMLToPDFText{} }

func (a *HTMLToPDFText) Name() string { return "text-layout" }

func (a *HTMLToPDFText) Attempt(ctx context.Context, inputPath, outputPath string) (map[string]any, error) {
	return contain(outputPath, func() (map[string]any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(inputPath)
		if err != nil {
			return nil, fmt.Errorf("read html: %w", err)
		}

		htmlStr, charset := decodeHTML(data)
		htmlStr = reScript.ReplaceAllString(htmlStr, "")
		htmlStr = reStyle.ReplaceAllString(htmlStr, "")

		conv := converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(
					commonmark.WithHeadingStyle("atx"),
				),
			),
		)
		md, err := conv.ConvertString(htmlStr)
		if err != nil {
			return nil, fmt.Errorf("reduce html to text: %w", err)
		}

		md = normalizeText(md)
		if md == "" {
			return nil, fmt.Errorf("html contains no renderable text")
		}

		if err := writeTextPDF(outputPath, splitLines(md)); err != nil {
			return nil, err
		}
		return map[string]any{"charset": charset, "char_count": len(md)}, nil
	})
}

// decodeHTML detects the input charset. Non-UTF-8 inputs are coerced rather
// than transcoded; the detection result is surfaced in the job metadata so
// callers can see when content may have been degraded.
func decodeHTML(data []byte) (string, string) {
	charset := "UTF-8"
	if res, err := chardet.NewTextDetector().DetectBest(data); err == nil && res != nil {
		charset = res.Charset
	}
	s := string(data)
	if !strings.EqualFold(charset, "UTF-8") {
		s = strings.ToValidUTF8(s, "")
	}
	return s, charset
}
