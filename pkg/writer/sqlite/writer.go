// Package sqlite provides SQLite database writing for search results
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ChrisMcGann/PepMatch/pkg/core"
	"github.com/ChrisMcGann/PepMatch/pkg/search"
)

const (
	// Date format for HeaderTable (ISO 8601)
	headerDateFormat = "2006-01-02"
	schemaVersion    = 1
)

// Header describes the search that produced the database
type Header struct {
	Description        string
	Profile            string
	PrecursorTolerance string
	FragmentTolerance  string
	Catalog            string // one rule per line
}

// Match is one ranked peptide-spectrum match with its search context
type Match struct {
	search.TagMatch
	Protein     string
	PeptideMass float64  // neutral mass of the modified peptide
	Expectation *float64 // nil when no estimate is available
}

// Result is everything written for one spectrum
type Result struct {
	Spectrum *core.Spectrum
	Scored   int     // candidates scored for the spectrum
	Matches  []Match // best first
}

// Writer handles writing search results to SQLite database files
type Writer struct {
	db           *sql.DB
	outputPath   string
	spectrumStmt *sql.Stmt
	matchStmt    *sql.Stmt
	spectrumID   int
	matchID      int
	header       Header
}

// NewWriter creates a new SQLite writer
func NewWriter(outputPath string) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{
		db:         db,
		outputPath: outputPath,
		spectrumID: 1,
		matchID:    1,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// createTables creates the required database schema
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS SpectrumTable (
		SpectrumId INTEGER PRIMARY KEY,
		Title TEXT,
		SourceFile TEXT,
		SourceFormat TEXT,
		Charge INTEGER,
		PrecursorMZ DOUBLE,
		NeutralMass DOUBLE,
		RetentionTime DOUBLE,
		PeakCount INTEGER,
		CandidatesScored INTEGER,
		blobMass BLOB,
		blobIntensity BLOB
	);

	CREATE TABLE IF NOT EXISTS MatchTable (
		MatchId INTEGER PRIMARY KEY,
		SpectrumId INTEGER REFERENCES SpectrumTable(SpectrumId),
		Rank INTEGER,
		Sequence TEXT,
		Modifications TEXT,
		IndexKey TEXT,
		Protein TEXT,
		Score DOUBLE,
		Unmatched INTEGER,
		PeptideMass DOUBLE,
		MassError DOUBLE,
		Expectation DOUBLE
	);

	CREATE INDEX IF NOT EXISTS MatchBySpectrum ON MatchTable(SpectrumId, Rank);

	CREATE TABLE IF NOT EXISTS HeaderTable (
		version INTEGER NOT NULL DEFAULT 0,
		CreationDate TEXT,
		Description TEXT,
		Profile TEXT,
		PrecursorTolerance TEXT,
		FragmentTolerance TEXT,
		Catalog TEXT,
		SpectrumCount INTEGER,
		MatchCount INTEGER
	);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares SQL statements for batch insertion
func (w *Writer) prepareStatements() error {
	var err error

	w.spectrumStmt, err = w.db.Prepare(`
		INSERT INTO SpectrumTable (
			SpectrumId, Title, SourceFile, SourceFormat, Charge, PrecursorMZ,
			NeutralMass, RetentionTime, PeakCount, CandidatesScored,
			blobMass, blobIntensity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare spectrum statement: %w", err)
	}

	w.matchStmt, err = w.db.Prepare(`
		INSERT INTO MatchTable (
			MatchId, SpectrumId, Rank, Sequence, Modifications, IndexKey,
			Protein, Score, Unmatched, PeptideMass, MassError, Expectation
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare match statement: %w", err)
	}

	return nil
}

// SetHeader sets the search description written by Finalize
func (w *Writer) SetHeader(h Header) {
	w.header = h
}

// WriteResult writes a spectrum and its ranked matches to the database
func (w *Writer) WriteResult(res Result) error {
	spec := res.Spectrum

	// Ensure peaks are sorted
	if !spec.ArePeaksSorted() {
		spec.SortPeaks()
	}

	// Encode peaks as binary blobs (little-endian float64)
	mzBlob := encodePeaksFloat64(spec.Peaks, true)   // m/z values
	intBlob := encodePeaksFloat64(spec.Peaks, false) // intensity values

	// Handle optional retention time
	var rt interface{} = nil
	if spec.RetentionTime != nil {
		rt = *spec.RetentionTime
	}

	neutralMass := spec.NeutralMass()
	_, err := w.spectrumStmt.Exec(
		w.spectrumID,      // SpectrumId
		spec.Title,        // Title
		spec.SourceFile,   // SourceFile
		spec.SourceFormat, // SourceFormat
		spec.Charge,       // Charge
		spec.PrecursorMZ,  // PrecursorMZ
		neutralMass,       // NeutralMass
		rt,                // RetentionTime
		len(spec.Peaks),   // PeakCount
		res.Scored,        // CandidatesScored
		mzBlob,            // blobMass
		intBlob,           // blobIntensity
	)
	if err != nil {
		return fmt.Errorf("failed to insert spectrum: %w", err)
	}

	for rank, m := range res.Matches {
		var expect interface{} = nil
		if m.Expectation != nil {
			expect = *m.Expectation
		}
		_, err := w.matchStmt.Exec(
			w.matchID,                 // MatchId
			w.spectrumID,              // SpectrumId
			rank+1,                    // Rank
			m.Peptide.Sequence(),      // Sequence
			m.Peptide.ModString(),     // Modifications
			m.Peptide.IndexKey(),      // IndexKey
			m.Protein,                 // Protein
			float64(m.Score),          // Score
			m.Unmatched,               // Unmatched
			m.PeptideMass,             // PeptideMass
			neutralMass-m.PeptideMass, // MassError
			expect,                    // Expectation
		)
		if err != nil {
			return fmt.Errorf("failed to insert match: %w", err)
		}
		w.matchID++
	}

	w.spectrumID++
	return nil
}

// encodePeaksFloat64 encodes peak data as little-endian float64 blob
func encodePeaksFloat64(peaks []core.Peak, useMZ bool) []byte {
	buf := make([]byte, len(peaks)*8)
	for i, peak := range peaks {
		var value float64
		if useMZ {
			value = peak.MZ
		} else {
			value = peak.Intensity
		}
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(value))
	}
	return buf
}

// Finalize writes the header table and closes the database
func (w *Writer) Finalize() error {
	_, err := w.db.Exec(`
		INSERT INTO HeaderTable (version, CreationDate, Description, Profile, PrecursorTolerance, FragmentTolerance, Catalog, SpectrumCount, MatchCount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, schemaVersion, time.Now().Format(headerDateFormat), w.header.Description, w.header.Profile,
		w.header.PrecursorTolerance, w.header.FragmentTolerance, w.header.Catalog,
		w.spectrumID-1, w.matchID-1)
	if err != nil {
		return fmt.Errorf("failed to insert header: %w", err)
	}

	// Close prepared statements
	if w.spectrumStmt != nil {
		w.spectrumStmt.Close()
	}
	if w.matchStmt != nil {
		w.matchStmt.Close()
	}

	// Close database
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// Close closes the database connection (alias for Finalize)
func (w *Writer) Close() error {
	return w.Finalize()
}
