package core

type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusWaiting  JobStatus = "waiting"
	JobStatusPrinting JobStatus = "printing"
	JobStatusDone     JobStatus = "done"
)

type ColorMode string

const (
	ColorModeBlackWhite ColorMode = "black-white"
	ColorModeColor      ColorMode = "color"
)

const (
	RateBlackWhite int64 = 2
	RateColor      int64 = 5
)

const (
	MinCopies = 1
	MaxCopies = 10
)

var validDuplex = map[string]bool{
	"single-sided":            true,
	"double-sided":            true,
	"double-sided-flip-long":  true,
	"double-sided-flip-short": true,
}

var validPaperSizes = map[string]bool{
	"A4":     true,
	"A3":     true,
	"Letter": true,
	"Legal":  true,
}

var validOrientations = map[string]bool{
	"portrait":  true,
	"landscape": true,
}

var validPagesPerSheet = map[int]bool{
	1: true,
	2: true,
	4: true,
	6: true,
	9: true,
}

// PrintSpec is fixed at job creation and never edited in place.
type PrintSpec struct {
	PageCount     int       `json:"page_count"`
	PageRange     string    `json:"page_range,omitempty"`
	ColorMode     ColorMode `json:"color_mode"`
	Copies        int       `json:"copies"`
	Duplex        string    `json:"duplex"`
	PaperSize     string    `json:"paper_size"`
	Orientation   string    `json:"orientation"`
	PagesPerSheet int       `json:"pages_per_sheet"`
}

// ApplyDefaults fills the optional fields the way the upload form leaves them.
func (s *PrintSpec) ApplyDefaults() {
	if s.ColorMode == "" {
		s.ColorMode = ColorModeBlackWhite
	}
	if s.Copies == 0 {
		s.Copies = 1
	}
	if s.Duplex == "" {
		s.Duplex = "single-sided"
	}
	if s.PaperSize == "" {
		s.PaperSize = "A4"
	}
	if s.Orientation == "" {
		s.Orientation = "portrait"
	}
	if s.PagesPerSheet == 0 {
		s.PagesPerSheet = 1
	}
}

func (s *PrintSpec) Validate() error {
	if s.PageCount < 1 {
		return validationErrorf("page count must be at least 1")
	}
	if s.ColorMode != ColorModeBlackWhite && s.ColorMode != ColorModeColor {
		return validationErrorf("invalid color mode: %s", s.ColorMode)
	}
	if s.Copies < MinCopies || s.Copies > MaxCopies {
		return validationErrorf("copies must be between %d and %d", MinCopies, MaxCopies)
	}
	if !validDuplex[s.Duplex] {
		return validationErrorf("invalid duplex mode: %s", s.Duplex)
	}
	if !validPaperSizes[s.PaperSize] {
		return validationErrorf("invalid paper size: %s", s.PaperSize)
	}
	if !validOrientations[s.Orientation] {
		return validationErrorf("invalid orientation: %s", s.Orientation)
	}
	if !validPagesPerSheet[s.PagesPerSheet] {
		return validationErrorf("invalid pages per sheet: %d", s.PagesPerSheet)
	}
	if s.PageRange != "" {
		if err := ValidatePageRange(s.PageRange, s.PageCount); err != nil {
			return err
		}
	}
	return nil
}

func Rate(mode ColorMode) int64 {
	if mode == ColorModeColor {
		return RateColor
	}
	return RateBlackWhite
}

// Amount is fixed at creation: pageCount x rate(colorMode) x copies.
func (s *PrintSpec) Amount() int64 {
	return int64(s.PageCount) * Rate(s.ColorMode) * int64(s.Copies)
}
