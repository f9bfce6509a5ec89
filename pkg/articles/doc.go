/*
Package articles is the SQLite-backed content store behind Laxpress pages.

It keeps feeds and their articles, and turns them into the render contexts
the page templates expect: an article detail page with related articles,
previous/next links and a breadcrumb, and a paged feed listing. Feeds and
articles can be exported to and imported from JSON for backups.

The package only uses database/sql; the caller picks the driver.
*/
package articles
