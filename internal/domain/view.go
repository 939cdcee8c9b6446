package domain

// SongView, ParticipantView and Snapshot are the wire contract observers
// depend on.
type SongView struct {
	ID       SongID `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Duration *int   `json:"duration"`
}

type ParticipantView struct {
	ID   ParticipantID `json:"id"`
	Name string        `json:"name"`
}

type Snapshot struct {
	ID           RoomID            `json:"id"`
	Name         RoomName          `json:"name"`
	Songs        []SongView        `json:"songs"`
	NowPlaying   *SongView         `json:"nowPlaying"`
	Participants []ParticipantView `json:"participants"`
}

func (s Song) View() SongView {
	return SongView{ID: s.ID, Title: s.Title, URL: s.URL, Duration: s.Duration}
}

func (p Participant) View() ParticipantView {
	return ParticipantView{ID: p.ID, Name: p.Name}
}
