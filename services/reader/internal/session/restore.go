package session

// restorer joins the two independent loads that restoration waits for: the
// remote progress lookup and the document page count. Either may arrive
// first.
type restorer struct {
	hasRestored    bool
	remoteResolved bool
	savedPage      *int
	savedZoom      *float64
	totalPages     *int
}

// setRemote records the progress lookup result. A nil p means nothing saved.
func (r *restorer) setRemote(p *Progress) {
	if r.remoteResolved {
		return
	}
	r.remoteResolved = true
	if p == nil {
		return
	}
	page := p.CurrentPage
	r.savedPage = &page
	if p.ZoomLevel > 0 {
		zoom := ClampZoom(p.ZoomLevel)
		r.savedZoom = &zoom
	}
}

func (r *restorer) setTotalPages(n int) {
	r.totalPages = &n
}

// resolve returns the restored page and zoom once both inputs are known. It
// reports ok exactly once per load.
func (r *restorer) resolve() (page int, zoom float64, ok bool) {
	if r.hasRestored || !r.remoteResolved || r.totalPages == nil {
		return 0, 0, false
	}
	r.hasRestored = true
	page = 1
	if r.savedPage != nil {
		page = Clamp(*r.savedPage, *r.totalPages)
	}
	zoom = DefaultZoom
	if r.savedZoom != nil {
		zoom = *r.savedZoom
	}
	return page, zoom, true
}

func (r *restorer) hasSavedZoom() bool {
	return r.savedZoom != nil
}
