package wbtv

/*------------------------------------------------------------------
 *
 * Purpose:   	Save received messages to a log file.
 *
 * Description: Rather than a raw hex capture, write separated fields
 *		in CSV format for easy reading and later processing.
 *
 *		There are two alternatives here.
 *
 *		log_file	Specify full file path.
 *
 *		log_dir		Daily names will be created here.
 *
 *		Use one or the other but not both.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lestrrat-go/strftime"
)

// Daily file name pattern, UTC.
const frame_log_name_pattern = "%Y-%m-%d.log"

const frame_log_header = "utime,isotime,channel,data,synced,clock_error\n"

type FrameLog struct {
	daily_names bool
	path        string /* directory when daily_names, else file name */

	fp         *os.File
	open_fname string /* applicable only when daily_names */
}

/*------------------------------------------------------------------
 *
 * Function:	OpenFrameLog
 *
 * Purpose:	Set up frame logging to a single file (daily_names
 *		false, path is the file) or to automatic daily files
 *		in a directory (daily_names true).
 *
 * Description:	The file is kept open between writes; with a single
 *		file, something like logrotate keeps the size under
 *		control.
 *
 *------------------------------------------------------------------*/

func OpenFrameLog(daily_names bool, path string) (*FrameLog, error) {
	if daily_names {
		var stat, statErr = os.Stat(path)

		if statErr != nil {
			// Doesn't exist.  Try to create it.  The parent
			// must exist; we don't do mkdir -p.
			if mkdirErr := os.Mkdir(path, 0755); mkdirErr != nil {
				return nil, fmt.Errorf("could not create log directory %s: %w", path, mkdirErr)
			}
		} else if !stat.IsDir() {
			return nil, fmt.Errorf("log location %s is not a directory", path)
		}
	}

	return &FrameLog{daily_names: daily_names, path: path}, nil
}

/*------------------------------------------------------------------
 *
 * Function:	Write
 *
 * Purpose:	Append one received message.
 *
 * Inputs:	channel, data	- As delivered by the dispatcher.
 *
 *		clock		- Node clock reading at receive time.
 *				  When the node runs without clock
 *				  discipline, pass a reading with
 *				  Error CLOCK_ERROR_NEVER_SET; the zero
 *				  value counts as synchronized.
 *
 *------------------------------------------------------------------*/

func (l *FrameLog) Write(channel []byte, data []byte, clock Time) error {
	var now = time.Now().UTC()

	if err := l.ensure_open(now); err != nil {
		return err
	}

	var synced = "0"
	var clock_error = ""
	if clock.Synchronized() {
		synced = "1"
		clock_error = strconv.FormatUint(uint64(clock.Error), 10)
	}

	var w = csv.NewWriter(l.fp)
	w.Write([]string{ //nolint:errcheck // surfaced via w.Error below
		strconv.FormatInt(now.Unix(), 10),
		now.Format("2006-01-02T15:04:05Z"),
		string(channel),
		string(data),
		synced,
		clock_error,
	})
	w.Flush()

	return w.Error()
}

// ensure_open opens (and in daily mode, rolls) the underlying file.
func (l *FrameLog) ensure_open(now time.Time) error {
	var full_path = l.path

	if l.daily_names {
		var fname, err = strftime.Format(frame_log_name_pattern, now)
		if err != nil {
			return err
		}

		// Close current file if the date has changed.
		if l.fp != nil && fname != l.open_fname {
			l.Close()
		}

		if l.fp != nil {
			return nil
		}

		l.open_fname = fname
		full_path = filepath.Join(l.path, fname)
	} else if l.fp != nil {
		return nil
	}

	// Write a header suitable for importing into a spreadsheet,
	// but only if this will be the first line.
	var _, statErr = os.Stat(full_path)
	var already_there = statErr == nil

	var fp, openErr = os.OpenFile(full_path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
	if openErr != nil {
		l.open_fname = ""
		return fmt.Errorf("could not open log file %s: %w", full_path, openErr)
	}

	l.fp = fp

	if !already_there {
		fmt.Fprint(l.fp, frame_log_header)
	}

	return nil
}

func (l *FrameLog) Close() {
	if l.fp != nil {
		l.fp.Close()
		l.fp = nil
		l.open_fname = ""
	}
}
