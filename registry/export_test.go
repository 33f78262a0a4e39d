package registry

// NextPageForTest exposes nextPage.
var NextPageForTest = nextPage

// MaxTagPagesForTest exposes maxTagPages.
const MaxTagPagesForTest = maxTagPages
