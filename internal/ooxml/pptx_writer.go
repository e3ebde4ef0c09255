package ooxml

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

// Slide is one slide of a presentation to be written. A slide may carry a
// full-bleed page image, text lines, or both (image above, text below).
type Slide struct {
	ImagePath string
	Lines     []string
}

// 16:9 slide dimensions in EMU.
const (
	slideCX = 12192000
	slideCY = 6858000
)

// WritePPTX writes a minimal PresentationML package with one slide per
// entry. Only the parts PowerPoint requires to open the file are emitted:
// content types, package rels, presentation, one master/layout/theme and the
// slides themselves.
func WritePPTX(path string, slides []Slide) error {
	if len(slides) == 0 {
		return fmt.Errorf("no slides to write")
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create pptx: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	parts := []struct {
		name string
		data func() ([]byte, error)
	}{
		{"[Content_Types].xml", func() ([]byte, error) { return contentTypesXML(len(slides)), nil }},
		{"_rels/.rels", func() ([]byte, error) { return []byte(packageRelsXML), nil }},
		{"ppt/presentation.xml", func() ([]byte, error) { return presentationXML(len(slides)), nil }},
		{"ppt/_rels/presentation.xml.rels", func() ([]byte, error) { return presentationRelsXML(len(slides)), nil }},
		{"ppt/slideMasters/slideMaster1.xml", func() ([]byte, error) { return []byte(slideMasterXML), nil }},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", func() ([]byte, error) { return []byte(slideMasterRelsXML), nil }},
		{"ppt/slideLayouts/slideLayout1.xml", func() ([]byte, error) { return []byte(slideLayoutXML), nil }},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", func() ([]byte, error) { return []byte(slideLayoutRelsXML), nil }},
		{"ppt/theme/theme1.xml", func() ([]byte, error) { return []byte(themeXML), nil }},
	}

	for _, p := range parts {
		data, err := p.data()
		if err != nil {
			return err
		}
		if err := writeZipEntry(zw, p.name, data); err != nil {
			return err
		}
	}

	for i, s := range slides {
		n := i + 1
		if err := writeZipEntry(zw, fmt.Sprintf("ppt/slides/slide%d.xml", n), slideXML(s)); err != nil {
			return err
		}
		if err := writeZipEntry(zw, fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", n), slideRelsXML(s, n)); err != nil {
			return err
		}
		if s.ImagePath != "" {
			img, err := os.ReadFile(s.ImagePath)
			if err != nil {
				return fmt.Errorf("read slide image: %w", err)
			}
			if err := writeZipEntry(zw, fmt.Sprintf("ppt/media/image%d.jpg", n), img); err != nil {
				return err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize pptx: %w", err)
	}
	return nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

func contentTypesXML(slideCount int) []byte {
	var sb strings.Builder
	sb.WriteString(xmlHeader)
	sb.WriteString(`<Types xmlns="` + NSContentTypes + `">`)
	sb.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	sb.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	sb.WriteString(`<Default Extension="jpg" ContentType="image/jpeg"/>`)
	sb.WriteString(`<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>`)
	sb.WriteString(`<Override PartName="/ppt/slideMasters/slideMaster1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"/>`)
	sb.WriteString(`<Override PartName="/ppt/slideLayouts/slideLayout1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"/>`)
	sb.WriteString(`<Override PartName="/ppt/theme/theme1.xml" ContentType="application/vnd.openxmlformats-officedocument.theme+xml"/>`)
	for i := 1; i <= slideCount; i++ {
		fmt.Fprintf(&sb, `<Override PartName="/ppt/slides/slide%d.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>`, i)
	}
	sb.WriteString(`</Types>`)
	return []byte(sb.String())
}

const packageRelsXML = xmlHeader +
	`<Relationships xmlns="` + NSRelationships + `">` +
	`<Relationship Id="rId1" Type="` + NSRelOfficeDoc + `/officeDocument" Target="ppt/presentation.xml"/>` +
	`</Relationships>`

func presentationXML(slideCount int) []byte {
	var sb strings.Builder
	sb.WriteString(xmlHeader)
	sb.WriteString(`<p:presentation xmlns:a="` + NSDrawingML + `" xmlns:r="` + NSRelOfficeDoc + `" xmlns:p="` + NSPresentationML + `">`)
	sb.WriteString(`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rIdMaster"/></p:sldMasterIdLst>`)
	sb.WriteString(`<p:sldIdLst>`)
	for i := 1; i <= slideCount; i++ {
		fmt.Fprintf(&sb, `<p:sldId id="%d" r:id="rId%d"/>`, 255+i, i)
	}
	sb.WriteString(`</p:sldIdLst>`)
	fmt.Fprintf(&sb, `<p:sldSz cx="%d" cy="%d"/><p:notesSz cx="6858000" cy="9144000"/>`, slideCX, slideCY)
	sb.WriteString(`</p:presentation>`)
	return []byte(sb.String())
}

func presentationRelsXML(slideCount int) []byte {
	var sb strings.Builder
	sb.WriteString(xmlHeader)
	sb.WriteString(`<Relationships xmlns="` + NSRelationships + `">`)
	sb.WriteString(`<Relationship Id="rIdMaster" Type="` + NSRelOfficeDoc + `/slideMaster" Target="slideMasters/slideMaster1.xml"/>`)
	for i := 1; i <= slideCount; i++ {
		fmt.Fprintf(&sb, `<Relationship Id="rId%d" Type="`+NSRelOfficeDoc+`/slide" Target="slides/slide%d.xml"/>`, i, i)
	}
	sb.WriteString(`</Relationships>`)
	return []byte(sb.String())
}

func slideXML(s Slide) []byte {
	var sb strings.Builder
	sb.WriteString(xmlHeader)
	sb.WriteString(`<p:sld xmlns:a="` + NSDrawingML + `" xmlns:r="` + NSRelOfficeDoc + `" xmlns:p="` + NSPresentationML + `">`)
	sb.WriteString(`<p:cSld><p:spTree>`)
	sb.WriteString(`<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>`)

	shapeID := 2
	if s.ImagePath != "" {
		fmt.Fprintf(&sb,
			`<p:pic><p:nvPicPr><p:cNvPr id="%d" name="Page Image"/><p:cNvPicPr/><p:nvPr/></p:nvPicPr>`+
				`<p:blipFill><a:blip r:embed="rIdImg"/><a:stretch><a:fillRect/></a:stretch></p:blipFill>`+
				`<p:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm>`+
				`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:pic>`,
			shapeID, slideCX, slideCY)
		shapeID++
	}

	if len(s.Lines) > 0 {
		// Text box over the lower half when an image fills the slide,
		// otherwise over the full slide body.
		offY, extY := slideCY/16, slideCY*7/8
		if s.ImagePath != "" {
			offY, extY = slideCY/2, slideCY/2
		}
		fmt.Fprintf(&sb,
			`<p:sp><p:nvSpPr><p:cNvPr id="%d" name="Page Text"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`+
				`<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm>`+
				`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr>`+
				`<p:txBody><a:bodyPr wrap="square"/><a:lstStyle/>`,
			shapeID, slideCX/16, offY, slideCX*7/8, extY)
		for _, line := range s.Lines {
			sb.WriteString(`<a:p><a:r><a:rPr lang="en-US" sz="1400"/><a:t>`)
			sb.WriteString(escapeXML(line))
			sb.WriteString(`</a:t></a:r></a:p>`)
		}
		sb.WriteString(`</p:txBody></p:sp>`)
	}

	sb.WriteString(`</p:spTree></p:cSld></p:sld>`)
	return []byte(sb.String())
}

func slideRelsXML(s Slide, n int) []byte {
	var sb strings.Builder
	sb.WriteString(xmlHeader)
	sb.WriteString(`<Relationships xmlns="` + NSRelationships + `">`)
	sb.WriteString(`<Relationship Id="rIdLayout" Type="` + NSRelOfficeDoc + `/slideLayout" Target="../slideLayouts/slideLayout1.xml"/>`)
	if s.ImagePath != "" {
		fmt.Fprintf(&sb, `<Relationship Id="rIdImg" Type="`+NSRelOfficeDoc+`/image" Target="../media/image%d.jpg"/>`, n)
	}
	sb.WriteString(`</Relationships>`)
	return []byte(sb.String())
}

func escapeXML(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}

const emptySpTree = `<p:cSld><p:spTree>` +
	`<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>` +
	`</p:spTree></p:cSld>`

const slideMasterXML = xmlHeader +
	`<p:sldMaster xmlns:a="` + NSDrawingML + `" xmlns:r="` + NSRelOfficeDoc + `" xmlns:p="` + NSPresentationML + `">` +
	emptySpTree +
	`<p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/>` +
	`<p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/></p:sldLayoutIdLst>` +
	`</p:sldMaster>`

const slideMasterRelsXML = xmlHeader +
	`<Relationships xmlns="` + NSRelationships + `">` +
	`<Relationship Id="rId1" Type="` + NSRelOfficeDoc + `/slideLayout" Target="../slideLayouts/slideLayout1.xml"/>` +
	`<Relationship Id="rId2" Type="` + NSRelOfficeDoc + `/theme" Target="../theme/theme1.xml"/>` +
	`</Relationships>`

const slideLayoutXML = xmlHeader +
	`<p:sldLayout xmlns:a="` + NSDrawingML + `" xmlns:r="` + NSRelOfficeDoc + `" xmlns:p="` + NSPresentationML + `" type="blank">` +
	emptySpTree +
	`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>` +
	`</p:sldLayout>`

const slideLayoutRelsXML = xmlHeader +
	`<Relationships xmlns="` + NSRelationships + `">` +
	`<Relationship Id="rId1" Type="` + NSRelOfficeDoc + `/slideMaster" Target="../slideMasters/slideMaster1.xml"/>` +
	`</Relationships>`

// themeXML is the smallest theme PowerPoint accepts: a full color scheme,
// a font scheme and the three required format lists.
const themeXML = xmlHeader +
	`<a:theme xmlns:a="` + NSDrawingML + `" name="Office">` +
	`<a:themeElements>` +
	`<a:clrScheme name="Office">` +
	`<a:dk1><a:sysClr val="windowText" lastClr="000000"/></a:dk1>` +
	`<a:lt1><a:sysClr val="window" lastClr="FFFFFF"/></a:lt1>` +
	`<a:dk2><a:srgbClr val="44546A"/></a:dk2>` +
	`<a:lt2><a:srgbClr val="E7E6E6"/></a:lt2>` +
	`<a:accent1><a:srgbClr val="4472C4"/></a:accent1>` +
	`<a:accent2><a:srgbClr val="ED7D31"/></a:accent2>` +
	`<a:accent3><a:srgbClr val="A5A5A5"/></a:accent3>` +
	`<a:accent4><a:srgbClr val="FFC000"/></a:accent4>` +
	`<a:accent5><a:srgbClr val="5B9BD5"/></a:accent5>` +
	`<a:accent6><a:srgbClr val="70AD47"/></a:accent6>` +
	`<a:hlink><a:srgbClr val="0563C1"/></a:hlink>` +
	`<a:folHlink><a:srgbClr val="954F72"/></a:folHlink>` +
	`</a:clrScheme>` +
	`<a:fontScheme name="Office">` +
	`<a:majorFont><a:latin typeface="Calibri Light"/><a:ea typeface=""/><a:cs typeface=""/></a:majorFont>` +
	`<a:minorFont><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:minorFont>` +
	`</a:fontScheme>` +
	`<a:fmtScheme name="Office">` +
	`<a:fillStyleLst><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:fillStyleLst>` +
	`<a:lnStyleLst><a:ln><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln><a:ln><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln><a:ln><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln></a:lnStyleLst>` +
	`<a:effectStyleLst><a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle></a:effectStyleLst>` +
	`<a:bgFillStyleLst><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:bgFillStyleLst>` +
	`</a:fmtScheme>` +
	`</a:themeElements>` +
	`</a:theme>`
