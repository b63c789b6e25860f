package position

// Cache memoizes one Document per Type for the newest frame of a History.
//
// Sub-values shared between representations are built once per frame: time,
// altitude and track for every type, coordinates once per coordinate system
// and speed once per unit. Everything is dropped as soon as the history
// sequence moves. Like History, a Cache belongs to a single goroutine.
type Cache struct {
	history *History
	seq     uint64

	docs [typeCount]*Document

	time     *uint32
	altitude *float64
	track    *float64

	latDecimal *float64
	lonDecimal *float64
	latDMS     *string
	lonDMS     *string

	speed [unitCount]*float64

	builds uint64
}

func NewCache(h *History) *Cache {
	return &Cache{history: h}
}

// Get returns the document for t, building it if the cache is cold.
func (c *Cache) Get(t Type) (*Document, error) {
	if !t.Valid() {
		return nil, ErrUnknownType
	}
	if seq := c.history.Seq(); seq != c.seq {
		c.reset()
		c.seq = seq
	}
	if d := c.docs[t]; d != nil {
		return d, nil
	}
	d, err := c.build(t)
	if err != nil {
		return nil, err
	}
	c.docs[t] = d
	return d, nil
}

// Builds counts documents built since creation.
func (c *Cache) Builds() uint64 { return c.builds }

func (c *Cache) reset() {
	c.docs = [typeCount]*Document{}
	c.time = nil
	c.altitude = nil
	c.track = nil
	c.latDecimal = nil
	c.lonDecimal = nil
	c.latDMS = nil
	c.lonDMS = nil
	c.speed = [unitCount]*float64{}
}

func (c *Cache) build(t Type) (*Document, error) {
	f, _ := c.history.Latest()
	d := &Document{Type: t}

	if c.time == nil && f.Has(FieldTime) {
		v := f.TimeOfDayMillis
		c.time = &v
	}
	d.Time = c.time
	if c.altitude == nil && f.Has(FieldAltitude) {
		v := f.AltitudeM
		c.altitude = &v
	}
	d.Altitude = c.altitude
	if c.track == nil && f.Has(FieldTrack) {
		v := f.TrackDeg
		c.track = &v
	}
	d.Track = c.track

	switch t.coords() {
	case coordDMS:
		if c.latDMS == nil && f.Has(FieldLatitude) {
			v := FormatDMS(f.LatitudeDeg, true)
			c.latDMS = &v
		}
		if c.lonDMS == nil && f.Has(FieldLongitude) {
			v := FormatDMS(f.LongitudeDeg, false)
			c.lonDMS = &v
		}
		if c.latDMS != nil {
			d.Latitude = c.latDMS
		}
		if c.lonDMS != nil {
			d.Longitude = c.lonDMS
		}
	default:
		if c.latDecimal == nil && f.Has(FieldLatitude) {
			v := f.LatitudeDeg
			c.latDecimal = &v
		}
		if c.lonDecimal == nil && f.Has(FieldLongitude) {
			v := f.LongitudeDeg
			c.lonDecimal = &v
		}
		if c.latDecimal != nil {
			d.Latitude = c.latDecimal
		}
		if c.lonDecimal != nil {
			d.Longitude = c.lonDecimal
		}
	}

	u := t.unit()
	if c.speed[u] == nil && f.Has(FieldSpeed) {
		v := u.fromMPS(f.SpeedMPS)
		c.speed[u] = &v
	}
	d.Speed = c.speed[u]

	if err := d.seal(); err != nil {
		return nil, err
	}
	c.builds++
	return d, nil
}
