package photoprism

// Album represents a PhotoPrism album
type Album struct {
	UID         string `json:"UID"`
	Title       string `json:"Title"`
	Description string `json:"Description"`
	PhotoCount  int    `json:"PhotoCount"`
	Type        string `json:"Type"`
}

// Photo represents a PhotoPrism photo as returned by search listings
type Photo struct {
	UID          string `json:"UID"`
	Title        string `json:"Title"`
	Type         string `json:"Type"`
	Hash         string `json:"Hash"` // primary file hash
	Mime         string `json:"Mime"`
	Width        int    `json:"Width"`
	Height       int    `json:"Height"`
	OriginalName string `json:"OriginalName"`
	FileName     string `json:"FileName"`
	Name         string `json:"Name"`
}

// DisplayName returns the most human friendly name PhotoPrism has for the photo.
func (p Photo) DisplayName() string {
	for _, s := range []string{p.OriginalName, p.FileName, p.Title, p.Name} {
		if s != "" {
			return s
		}
	}
	return p.UID
}
