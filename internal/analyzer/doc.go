// Package analyzer derives SEO, accessibility and performance signals from
// a rendered HTML document.
//
// Analyze is a pure function of its inputs. It parses the document once with
// golang.org/x/net/html and queries it through goquery; each sub-analysis
// fills its part of model.PageAnalysis and appends issues in a fixed order,
// so identical input always produces identical output.
//
// # Issue rules
//
//   - Meta: title 10-60 characters, description 50-160 characters, Open
//     Graph, Twitter Card and canonical tags present
//   - Headings: exactly one H1, no H2 without an H1
//   - Images: every image has alt text
//   - Performance: inline CSS up to 50KB, at most 3 render-blocking scripts,
//     lazy loading on image-heavy pages
//   - Accessibility: labeled form controls, a main landmark
//   - Document: lang attribute, viewport meta tag, favicon
package analyzer
