package models

// MenuItem позиция меню из каталога
type MenuItem struct {
	ID        string  `json:"id" yaml:"id" db:"id"`
	Name      string  `json:"name" yaml:"name" db:"name"`
	Price     float64 `json:"price" yaml:"price" db:"price"`
	Available bool    `json:"available" yaml:"available" db:"available"`
}
