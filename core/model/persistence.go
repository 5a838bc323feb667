package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// SaveModel はモデルをgob形式でファイルに保存する
//
// 書き込みはWriteFileAtomicを通して行う。
//
// 使用例:
//
//	err := model.SaveModel(pipe, "artifacts/heart_disease_pipeline.gob")
func SaveModel(m interface{}, filename string) error {
	err := WriteFileAtomic(filename, func(w io.Writer) error {
		return SaveModelToWriter(m, w)
	})
	if err != nil {
		return errors.NewPersistenceError("save", filename, err)
	}
	return nil
}

// WriteFileAtomic は親ディレクトリを作成し、同じディレクトリの一時ファイルに
// writeで書き込んでからrenameする。途中で失敗した場合、既存のファイルは変更されず
// 一時ファイルは削除される。
func WriteFileAtomic(filename string, write func(w io.Writer) error) error {
	f, err := StageFile(filename, write)
	if err != nil {
		return err
	}
	defer f.Discard()
	return f.Commit()
}

// StagedFile は書き込み済みで、まだ配置されていないファイル
//
// 複数のファイルをまとめて置き換える場合は、全てをStageFileで書き込んでから
// Commitし、途中で失敗したらRollbackで元の内容に戻す。最後にDiscardで
// 一時ファイルとバックアップを片付ける。
type StagedFile struct {
	Path string

	tmp       string
	backup    string
	committed bool
}

// StageFile は親ディレクトリを作成し、filenameと同じディレクトリの一時ファイルに書き込む
// filename自体はCommitまで変更されない。
func StageFile(filename string, write func(w io.Writer) error) (sf *StagedFile, err error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".tmp-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	return &StagedFile{Path: filename, tmp: tmp.Name()}, nil
}

// Commit は一時ファイルをPathにrenameする
// 既存のファイルはRollbackのためにバックアップされる。
func (f *StagedFile) Commit() error {
	if f.committed {
		return nil
	}
	if _, err := os.Stat(f.Path); err == nil {
		backup := f.tmp + ".prev"
		if err := linkOrCopy(f.Path, backup); err != nil {
			return err
		}
		f.backup = backup
	}
	if err := os.Rename(f.tmp, f.Path); err != nil {
		return err
	}
	f.committed = true
	return nil
}

// Rollback はCommit前の状態に戻す
// 以前のファイルがあれば復元し、なければ配置したファイルを削除する。
func (f *StagedFile) Rollback() error {
	if !f.committed {
		return nil
	}
	f.committed = false
	if f.backup == "" {
		return os.Remove(f.Path)
	}
	err := os.Rename(f.backup, f.Path)
	f.backup = ""
	return err
}

// Discard は残っている一時ファイルとバックアップを削除する
// 配置済みのファイルには触れない。何度呼んでもよい。
func (f *StagedFile) Discard() {
	if !f.committed {
		_ = os.Remove(f.tmp)
	}
	if f.backup != "" {
		_ = os.Remove(f.backup)
		f.backup = ""
	}
}

func linkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}

// LoadModel はファイルからモデルを読み込む
//
// 使用例:
//
//	var pipe pipeline.Pipeline
//	err := model.LoadModel(&pipe, "artifacts/heart_disease_pipeline.gob")
func LoadModel(m interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.NewPersistenceError("load", filename, err)
	}
	defer file.Close()

	if err := LoadModelFromReader(m, file); err != nil {
		return errors.NewPersistenceError("load", filename, err)
	}
	return nil
}

// SaveModelToWriter はモデルをio.Writerに保存する
func SaveModelToWriter(m interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(m); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込む
func LoadModelFromReader(m interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(m); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}
