package services

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
)

// ---------------------------------------------------------------------------
// EPUB text extraction
// An EPUB is a ZIP archive: META-INF/container.xml points at the OPF package
// document, whose spine lists the content documents in reading order. Text
// is pulled from each spine document with markup stripped.
// ---------------------------------------------------------------------------

type epubContainer struct {
	XMLName   xml.Name       `xml:"container"`
	RootFiles []epubRootFile `xml:"rootfiles>rootfile"`
}

type epubRootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

type epubPackage struct {
	XMLName  xml.Name     `xml:"package"`
	Manifest epubManifest `xml:"manifest"`
	Spine    epubSpine    `xml:"spine"`
}

type epubManifest struct {
	Items []epubItem `xml:"item"`
}

type epubItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

type epubSpine struct {
	ItemRefs []epubItemRef `xml:"itemref"`
}

type epubItemRef struct {
	IDRef string `xml:"idref,attr"`
}

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	htmlEntityRegex = regexp.MustCompile(`&[a-zA-Z][a-zA-Z0-9]*;|&#[0-9]+;|&#x[0-9a-fA-F]+;`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// ExtractBookText returns the full readable text of an EPUB, spine documents
// joined in reading order with whitespace normalized.
func ExtractBookText(epubPath string) (string, error) {
	reader, err := zip.OpenReader(epubPath)
	if err != nil {
		return "", fmt.Errorf("failed to open EPUB: %w", err)
	}
	defer reader.Close()

	files := make(map[string]*zip.File, len(reader.File))
	for _, f := range reader.File {
		files[f.Name] = f
	}

	opfPath, err := findPackagePath(files)
	if err != nil {
		return "", err
	}

	contentPaths, err := spineDocuments(files, opfPath)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, path := range contentPaths {
		f, ok := files[path]
		if !ok {
			continue
		}

		body, err := readZipFile(f)
		if err != nil {
			continue
		}

		stripped := stripMarkup(string(body))
		if stripped != "" {
			text.WriteString(stripped)
			text.WriteString("\n\n")
		}
	}

	result := strings.TrimSpace(text.String())
	if result == "" {
		return "", errors.New("no text content extracted from EPUB")
	}

	return result, nil
}

// findPackagePath locates the OPF package document via container.xml.
func findPackagePath(files map[string]*zip.File) (string, error) {
	containerFile, ok := files["META-INF/container.xml"]
	if !ok {
		return "", errors.New("container.xml not found in EPUB")
	}

	body, err := readZipFile(containerFile)
	if err != nil {
		return "", fmt.Errorf("failed to read container.xml: %w", err)
	}

	var container epubContainer
	if err := xml.Unmarshal(body, &container); err != nil {
		return "", fmt.Errorf("failed to parse container.xml: %w", err)
	}

	if len(container.RootFiles) == 0 {
		return "", errors.New("no rootfile declared in container.xml")
	}

	return container.RootFiles[0].FullPath, nil
}

// spineDocuments resolves the spine's itemrefs to archive paths of the
// HTML/XHTML content documents, in reading order.
func spineDocuments(files map[string]*zip.File, opfPath string) ([]string, error) {
	opfFile, ok := files[opfPath]
	if !ok {
		return nil, fmt.Errorf("package document not found: %s", opfPath)
	}

	body, err := readZipFile(opfFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read package document: %w", err)
	}

	var pkg epubPackage
	if err := xml.Unmarshal(body, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse package document: %w", err)
	}

	manifest := make(map[string]epubItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		manifest[item.ID] = item
	}

	opfDir := filepath.Dir(opfPath)
	var paths []string
	for _, ref := range pkg.Spine.ItemRefs {
		item, ok := manifest[ref.IDRef]
		if !ok {
			continue
		}
		if item.MediaType != "application/xhtml+xml" && item.MediaType != "text/html" {
			continue
		}
		// ZIP entry names always use forward slashes.
		paths = append(paths, strings.ReplaceAll(filepath.Join(opfDir, item.Href), "\\", "/"))
	}

	if len(paths) == 0 {
		return nil, errors.New("no content documents found in EPUB spine")
	}

	return paths, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// stripMarkup reduces an HTML/XHTML document to plain text: tags removed,
// common entities decoded, whitespace collapsed.
func stripMarkup(doc string) string {
	text := htmlTagRegex.ReplaceAllString(doc, " ")

	replacements := [][2]string{
		{"&lt;", "<"}, {"&gt;", ">"}, {"&amp;", "&"},
		{"&quot;", `"`}, {"&apos;", "'"}, {"&nbsp;", " "},
		{"&#8217;", "'"}, {"&#8220;", `"`}, {"&#8221;", `"`},
	}
	for _, r := range replacements {
		text = strings.ReplaceAll(text, r[0], r[1])
	}
	text = htmlEntityRegex.ReplaceAllString(text, " ")

	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
