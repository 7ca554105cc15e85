package session

// Banner is the welcome screen header. Kept in code so a bare binary
// works without a data directory.
const Banner = `    o   o   o
    |   |   |   ._______.
 o--+---+---+--( itter.sh )
    |   |   |   '~~~~~~~'
    o   o   o

Micro-blogging for your terminal. No browser required.`
